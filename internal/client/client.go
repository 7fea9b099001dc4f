// Package client speaks the signaling control channel from the peer side.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/airtext/internal/models"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	eventBuffer    = 64
)

var ErrClosed = errors.New("signaling connection closed")

// RequestError is a reply with success=false.
type RequestError struct {
	Op      string
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
}

// HasCode reports whether err is a RequestError with the given wire code.
func HasCode(err error, code string) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Code == code
}

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	log      *zap.Logger
	outgoing chan models.SignalMessage
	events   chan models.ServerMessage
	done     chan struct{}

	mu      sync.Mutex
	pending map[string]chan models.ServerMessage

	closeOnce sync.Once
}

// SignalURL turns an http(s) server base URL into the control channel URL.
func SignalURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/signal"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial connects to the control channel at signalURL.
func Dial(ctx context.Context, signalURL string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, signalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c := &Client{
		conn:     conn,
		log:      log,
		outgoing: make(chan models.SignalMessage, 16),
		events:   make(chan models.ServerMessage, eventBuffer),
		done:     make(chan struct{}),
		pending:  make(map[string]chan models.ServerMessage),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Events yields server push events. It is closed when the connection ends.
func (c *Client) Events() <-chan models.ServerMessage {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CreateRoom asks the server for a fresh room and returns its code.
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	reply, err := c.request(ctx, "create room", models.SignalMessage{Type: models.SignalTypeCreateRoom})
	if err != nil {
		return "", err
	}
	return reply.Code, nil
}

// JoinRoom binds this client as the joiner of code.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	_, err := c.request(ctx, "join room", models.SignalMessage{Type: models.SignalTypeJoinRoom, Code: code})
	return err
}

// EnterRoom creates or joins code and returns the seat taken.
func (c *Client) EnterRoom(ctx context.Context, code string) (string, error) {
	reply, err := c.request(ctx, "enter room", models.SignalMessage{Type: models.SignalTypeEnterRoom, Code: code})
	if err != nil {
		return "", err
	}
	return reply.Role, nil
}

func (c *Client) Offer(ctx context.Context, code string, offer json.RawMessage) error {
	_, err := c.request(ctx, "offer", models.SignalMessage{Type: models.SignalTypeOffer, Code: code, Offer: offer})
	return err
}

func (c *Client) Answer(ctx context.Context, code string, answer json.RawMessage) error {
	_, err := c.request(ctx, "answer", models.SignalMessage{Type: models.SignalTypeAnswer, Code: code, Answer: answer})
	return err
}

// ICECandidate forwards a candidate. The server never replies to it.
func (c *Client) ICECandidate(code string, candidate json.RawMessage) error {
	return c.send(context.Background(), models.SignalMessage{Type: models.SignalTypeICECandidate, Code: code, Candidate: candidate})
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) request(ctx context.Context, op string, msg models.SignalMessage) (models.ServerMessage, error) {
	msg.RequestID = uuid.NewString()
	ch := make(chan models.ServerMessage, 1)

	c.mu.Lock()
	c.pending[msg.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, msg); err != nil {
		return models.ServerMessage{}, err
	}

	select {
	case reply := <-ch:
		if !reply.Success {
			return reply, &RequestError{Op: op, Code: reply.ErrorCode, Message: reply.Error}
		}
		return reply, nil
	case <-ctx.Done():
		return models.ServerMessage{}, ctx.Err()
	case <-c.done:
		return models.ServerMessage{}, ErrClosed
	}
}

func (c *Client) send(ctx context.Context, msg models.SignalMessage) error {
	select {
	case c.outgoing <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump routes replies to their waiting request and everything else to
// Events.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.conn.Close()
		close(c.events)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg models.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("signaling read ended", zap.Error(err))
			}
			return
		}

		if msg.Type == models.SignalTypeReply {
			c.mu.Lock()
			ch, ok := c.pending[msg.RequestID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			} else {
				c.log.Debug("unmatched reply", zap.String("request_id", msg.RequestID))
			}
			continue
		}

		select {
		case c.events <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
