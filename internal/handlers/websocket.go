package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/airtext/internal/middleware"
	"github.com/mossy-p/airtext/internal/models"
	"github.com/mossy-p/airtext/internal/roomcode"
	"github.com/mossy-p/airtext/internal/signaling"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
	replyBuffer    = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// connection pumps one control channel. readPump owns inbound requests,
// writePump owns the socket's writes.
type connection struct {
	h       *Handler
	conn    *websocket.Conn
	session *signaling.Session
	log     *zap.Logger

	replies    chan models.Reply
	writerDone chan struct{}
}

// HandleSignaling upgrades to the control channel. A valid ?token= session
// token fixes the client id; without one every connection is a new client.
func (h *Handler) HandleSignaling(c *gin.Context) {
	clientID := uuid.NewString()
	if token := c.Query("token"); token != "" {
		id, err := middleware.ParseToken(h.secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid token"})
			return
		}
		clientID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	cl := &connection{
		h:          h,
		conn:       conn,
		session:    h.coord.Attach(clientID),
		log:        h.log.With(zap.String("client_id", clientID)),
		replies:    make(chan models.Reply, replyBuffer),
		writerDone: make(chan struct{}),
	}
	cl.log.Debug("control channel opened")

	go cl.writePump()
	go cl.readPump()
}

func (c *connection) readPump() {
	defer func() {
		c.h.coord.OnDisconnect(c.session)
		c.conn.Close()
		c.log.Debug("control channel closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket error", zap.Error(err))
			}
			return
		}

		reply, ok := c.dispatch(message)
		if !ok {
			continue
		}
		select {
		case c.replies <- reply:
		case <-c.writerDone:
			return
		}
	}
}

// dispatch runs one request. It reports false for messages that get no
// reply.
func (c *connection) dispatch(message []byte) (models.Reply, bool) {
	clientID := c.session.ClientID()
	coord := c.h.coord

	var msg models.SignalMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return badRequest("", "malformed message"), true
	}
	reply := models.Reply{Type: models.SignalTypeReply, RequestID: msg.RequestID}

	var err error
	switch msg.Type {
	case models.SignalTypeCreateRoom:
		reply.Code, err = coord.CreateRoom(clientID)
		reply.Role = string(signaling.RoleCreator)
	case models.SignalTypeJoinRoom:
		err = coord.JoinRoom(clientID, msg.Code)
		reply.Code = roomcode.Normalize(msg.Code)
		reply.Role = string(signaling.RoleJoiner)
	case models.SignalTypeEnterRoom:
		var role signaling.Role
		role, err = coord.EnterRoom(clientID, msg.Code)
		reply.Code = roomcode.Normalize(msg.Code)
		reply.Role = string(role)
	case models.SignalTypeOffer:
		if len(msg.Offer) == 0 {
			return badRequest(msg.RequestID, "offer is required"), true
		}
		err = coord.RelayOffer(clientID, msg.Code, msg.Offer)
	case models.SignalTypeAnswer:
		if len(msg.Answer) == 0 {
			return badRequest(msg.RequestID, "answer is required"), true
		}
		err = coord.RelayAnswer(clientID, msg.Code, msg.Answer)
	case models.SignalTypeICECandidate:
		coord.RelayICECandidate(clientID, msg.Code, msg.Candidate)
		return models.Reply{}, false
	default:
		return badRequest(msg.RequestID, "unknown message type"), true
	}

	if err != nil {
		return models.Reply{
			Type:      models.SignalTypeReply,
			RequestID: msg.RequestID,
			Error:     err.Error(),
			ErrorCode: signaling.ErrorCode(err),
		}, true
	}
	reply.Success = true
	return reply, true
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
		c.conn.Close()
	}()

	events := c.session.Events()
	for {
		select {
		case reply := <-c.replies:
			if err := c.write(reply); err != nil {
				c.log.Info("failed to write reply", zap.Error(err))
				return
			}

		case ev, ok := <-events:
			if !ok {
				// Session ended or was superseded by a newer connection.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := c.write(pushEvent(ev)); err != nil {
				c.log.Info("failed to write event", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(v any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func pushEvent(ev signaling.Event) models.PushEvent {
	out := models.PushEvent{Type: models.SignalType(ev.Type), Code: ev.Code}
	switch ev.Type {
	case signaling.EventOffer:
		out.Offer = ev.Payload
	case signaling.EventAnswer:
		out.Answer = ev.Payload
	case signaling.EventICECandidate:
		out.Candidate = ev.Payload
	case signaling.EventRoomClosed:
		out.Reason = string(ev.Reason)
	}
	return out
}

func badRequest(requestID, msg string) models.Reply {
	return models.Reply{
		Type:      models.SignalTypeReply,
		RequestID: requestID,
		Error:     msg,
		ErrorCode: signaling.CodeBadRequest,
	}
}
