// Package signaling sequences room entry and the relay of negotiation
// metadata between the two participants of a room.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mossy-p/airtext/internal/ratelimit"
	"github.com/mossy-p/airtext/internal/roomcode"
	"github.com/mossy-p/airtext/internal/rooms"
	"go.uber.org/zap"
)

const (
	membershipCost = 5
	relayCost      = 1

	defaultEventBuffer = 64
)

// Operation names used in logs and rejection metrics.
const (
	OpEnterRoom    = "enter-room"
	OpCreateRoom   = "create-room"
	OpJoinRoom     = "join-room"
	OpOffer        = "offer"
	OpAnswer       = "answer"
	OpICECandidate = "ice-candidate"
	OpCloseRoom    = "close-room"
)

// Coordinator is safe for concurrent use by any number of connection
// handlers. None of its operations block on I/O.
type Coordinator struct {
	registry  *rooms.Registry
	limiter   *ratelimit.Limiter
	log       *zap.Logger
	observers []Observer
	buffer    int

	mu       sync.RWMutex
	sessions map[string]*Session
	bindings map[string]map[string]struct{} // client id -> room codes
	nextGen  uint64
}

type Option func(*Coordinator)

// WithObserver registers an observer for lifecycle notifications.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, o) }
}

// WithEventBuffer sets the capacity of each session's event channel.
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.buffer = n
		}
	}
}

func New(registry *rooms.Registry, limiter *ratelimit.Limiter, log *zap.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		registry: registry,
		limiter:  limiter,
		log:      log,
		buffer:   defaultEventBuffer,
		sessions: make(map[string]*Session),
		bindings: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach opens a session for clientID. An existing session for the same
// client is superseded: its channel is closed and its later disconnect is
// ignored, so room bindings carry over to the new session.
func (c *Coordinator) Attach(clientID string) *Session {
	c.mu.Lock()
	c.nextGen++
	s := newSession(clientID, c.nextGen, c.buffer)
	old := c.sessions[clientID]
	c.sessions[clientID] = s
	c.mu.Unlock()

	if old != nil {
		old.close()
		c.log.Info("session superseded", zap.String("client_id", clientID))
	}
	return s
}

// OnDisconnect ends the session. If it is still the client's current
// session, every room the client is bound to is deleted, the remaining
// participant is told, and the client's rate-limit bucket is dropped.
func (c *Coordinator) OnDisconnect(s *Session) {
	defer s.close()

	c.mu.Lock()
	if cur, ok := c.sessions[s.clientID]; !ok || cur.gen != s.gen {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, s.clientID)
	codes := c.bindings[s.clientID]
	delete(c.bindings, s.clientID)
	c.mu.Unlock()

	for code := range codes {
		room, ok := c.registry.DeleteIf(code, func(r rooms.Room) bool {
			return r.IsParticipant(s.clientID)
		})
		if !ok {
			continue
		}
		c.roomClosed(room, s.clientID, ReasonPeerLeft)
	}
	c.limiter.Remove(s.clientID)
}

// SessionCount returns the number of attached sessions.
func (c *Coordinator) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// EnterRoom creates the room with the given code if it is absent, re-binds
// its creator, or binds a second client as joiner.
func (c *Coordinator) EnterRoom(clientID, code string) (Role, error) {
	if !c.limiter.Check(clientID, membershipCost) {
		return "", c.reject(OpEnterRoom, clientID, code, ErrRateLimited)
	}
	if !roomcode.Valid(code) {
		return "", c.reject(OpEnterRoom, clientID, code, ErrRoomNotFound)
	}
	code = roomcode.Normalize(code)

	// Two passes cover losing a create race or the room vanishing between
	// lookup and bind.
	for attempt := 0; attempt < 2; attempt++ {
		room, ok := c.registry.Get(code)
		if !ok {
			_, err := c.registry.Create(clientID, code)
			if errors.Is(err, rooms.ErrCodeTaken) {
				continue
			}
			if err != nil {
				return "", c.reject(OpEnterRoom, clientID, code, err)
			}
			c.opened(clientID, code)
			return RoleCreator, nil
		}

		switch {
		case room.CreatorID == clientID:
			c.bind(clientID, code)
			return RoleCreator, nil
		case room.JoinerID == clientID:
			c.bind(clientID, code)
			return RoleJoiner, nil
		case room.HasJoiner():
			return "", c.reject(OpEnterRoom, clientID, code, ErrRoomFull)
		}

		err := c.registry.SetJoiner(code, clientID)
		if errors.Is(err, rooms.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", c.reject(OpEnterRoom, clientID, code, ErrRoomFull)
		}
		room.JoinerID = clientID
		c.paired(room)
		return RoleJoiner, nil
	}
	return "", c.reject(OpEnterRoom, clientID, code, ErrRoomNotFound)
}

// CreateRoom binds clientID as creator of a room with a fresh code.
func (c *Coordinator) CreateRoom(clientID string) (string, error) {
	if !c.limiter.Check(clientID, membershipCost) {
		return "", c.reject(OpCreateRoom, clientID, "", ErrRateLimited)
	}
	code, err := c.registry.Create(clientID, "")
	if err != nil {
		return "", c.reject(OpCreateRoom, clientID, "", err)
	}
	c.opened(clientID, code)
	return code, nil
}

// JoinRoom binds clientID as the joiner of an existing room.
func (c *Coordinator) JoinRoom(clientID, code string) error {
	if !c.limiter.Check(clientID, membershipCost) {
		return c.reject(OpJoinRoom, clientID, code, ErrRateLimited)
	}
	room, ok := c.registry.Get(code)
	if !ok {
		return c.reject(OpJoinRoom, clientID, code, ErrRoomNotFound)
	}
	code = room.Code

	switch {
	case room.CreatorID == clientID:
		return c.reject(OpJoinRoom, clientID, code, ErrCannotJoinOwnRoom)
	case room.JoinerID == clientID:
		c.bind(clientID, code)
		return nil
	case room.HasJoiner():
		return c.reject(OpJoinRoom, clientID, code, ErrRoomFull)
	}

	if err := c.registry.SetJoiner(code, clientID); err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			return c.reject(OpJoinRoom, clientID, code, ErrRoomNotFound)
		}
		return c.reject(OpJoinRoom, clientID, code, ErrRoomFull)
	}
	room.JoinerID = clientID
	c.paired(room)
	return nil
}

// RelayOffer stores the creator's offer and forwards it to the joiner. If
// the joiner's session cannot take the event the offer is still stored and
// ErrPeerUnavailable tells the creator to retry.
func (c *Coordinator) RelayOffer(clientID, code string, offer json.RawMessage) error {
	if !c.limiter.Check(clientID, relayCost) {
		return c.reject(OpOffer, clientID, code, ErrRateLimited)
	}
	room, ok := c.registry.Get(code)
	if !ok {
		return c.reject(OpOffer, clientID, code, ErrRoomNotFound)
	}
	if room.CreatorID != clientID {
		return c.reject(OpOffer, clientID, room.Code, ErrUnauthorized)
	}
	if !room.HasJoiner() {
		return c.reject(OpOffer, clientID, room.Code, ErrNoJoiner)
	}
	// Seats never change once bound, so the checks above still hold unless
	// the room itself is gone.
	if err := c.registry.RecordOffer(room.Code, offer); err != nil {
		return c.reject(OpOffer, clientID, room.Code, ErrRoomNotFound)
	}

	if !c.deliver(room.JoinerID, Event{Type: EventOffer, Code: room.Code, Payload: offer}) {
		return c.reject(OpOffer, clientID, room.Code, ErrPeerUnavailable)
	}
	c.relayed(EventOffer)
	c.log.Debug("offer relayed", zap.String("code", room.Code), zap.String("client_id", clientID))
	return nil
}

// RelayAnswer stores the joiner's answer and forwards it to the creator,
// failing with ErrPeerUnavailable like RelayOffer.
func (c *Coordinator) RelayAnswer(clientID, code string, answer json.RawMessage) error {
	if !c.limiter.Check(clientID, relayCost) {
		return c.reject(OpAnswer, clientID, code, ErrRateLimited)
	}
	room, ok := c.registry.Get(code)
	if !ok {
		return c.reject(OpAnswer, clientID, code, ErrRoomNotFound)
	}
	if !room.HasJoiner() || room.JoinerID != clientID {
		return c.reject(OpAnswer, clientID, room.Code, ErrUnauthorized)
	}
	if err := c.registry.RecordAnswer(room.Code, answer); err != nil {
		return c.reject(OpAnswer, clientID, room.Code, ErrRoomNotFound)
	}

	if !c.deliver(room.CreatorID, Event{Type: EventAnswer, Code: room.Code, Payload: answer}) {
		return c.reject(OpAnswer, clientID, room.Code, ErrPeerUnavailable)
	}
	c.relayed(EventAnswer)
	c.log.Debug("answer relayed", zap.String("code", room.Code), zap.String("client_id", clientID))
	return nil
}

// RelayICECandidate forwards a candidate to the other participant. Failures
// are silent: candidates routinely arrive after a room is torn down.
func (c *Coordinator) RelayICECandidate(clientID, code string, candidate json.RawMessage) {
	if !c.limiter.Check(clientID, relayCost) {
		return
	}
	room, ok := c.registry.Get(code)
	if !ok {
		return
	}
	peer := room.Peer(clientID)
	if peer == "" {
		return
	}
	c.registry.Touch(room.Code)
	c.deliver(peer, Event{Type: EventICECandidate, Code: room.Code, Payload: candidate})
	c.relayed(EventICECandidate)
}

// CloseRoom lets the creator tear a room down explicitly. Both participants
// are notified.
func (c *Coordinator) CloseRoom(clientID, code string) error {
	if !c.limiter.Check(clientID, membershipCost) {
		return c.reject(OpCloseRoom, clientID, code, ErrRateLimited)
	}
	room, ok := c.registry.DeleteIf(code, func(r rooms.Room) bool {
		return r.CreatorID == clientID
	})
	if !ok {
		if existing, found := c.registry.Get(code); found && existing.CreatorID != clientID {
			return c.reject(OpCloseRoom, clientID, code, ErrUnauthorized)
		}
		return c.reject(OpCloseRoom, clientID, code, ErrRoomNotFound)
	}
	c.deliver(room.CreatorID, Event{Type: EventRoomClosed, Code: room.Code, Reason: ReasonClosed})
	c.roomClosed(room, room.CreatorID, ReasonClosed)
	return nil
}

// Status returns a snapshot of the room for read-only callers.
func (c *Coordinator) Status(code string) (rooms.Room, State, bool) {
	room, ok := c.registry.Get(code)
	if !ok {
		return rooms.Room{}, "", false
	}
	return room, StateOf(room), true
}

// SweepExpired evicts rooms idle for longer than ttl.
func (c *Coordinator) SweepExpired(now time.Time, ttl time.Duration) []string {
	codes := c.registry.SweepExpired(now, ttl)
	c.unbindAll(codes)
	for _, code := range codes {
		c.log.Info("expired room swept", zap.String("code", code))
		for _, o := range c.observers {
			o.RoomClosed(code, ReasonExpired)
		}
	}
	return codes
}

// RunSweeper evicts expired rooms every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.SweepExpired(now, ttl)
		}
	}
}

func (c *Coordinator) bind(clientID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes, ok := c.bindings[clientID]
	if !ok {
		codes = make(map[string]struct{})
		c.bindings[clientID] = codes
	}
	codes[code] = struct{}{}
}

func (c *Coordinator) unbind(clientID, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if codes, ok := c.bindings[clientID]; ok {
		delete(codes, code)
		if len(codes) == 0 {
			delete(c.bindings, clientID)
		}
	}
}

// unbindAll drops the given codes from every client's bindings.
func (c *Coordinator) unbindAll(codes []string) {
	if len(codes) == 0 {
		return
	}
	gone := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		gone[code] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for clientID, bound := range c.bindings {
		for code := range bound {
			if _, ok := gone[code]; ok {
				delete(bound, code)
			}
		}
		if len(bound) == 0 {
			delete(c.bindings, clientID)
		}
	}
}

func (c *Coordinator) opened(clientID, code string) {
	c.bind(clientID, code)
	c.log.Info("room created", zap.String("code", code), zap.String("client_id", clientID))
	if len(c.observers) == 0 {
		return
	}
	if room, ok := c.registry.Get(code); ok {
		for _, o := range c.observers {
			o.RoomOpened(room)
		}
	}
}

func (c *Coordinator) paired(room rooms.Room) {
	c.bind(room.JoinerID, room.Code)
	c.deliver(room.CreatorID, Event{Type: EventPeerConnected, Code: room.Code})
	c.log.Info("room joined", zap.String("code", room.Code), zap.String("client_id", room.JoinerID))
	for _, o := range c.observers {
		o.RoomPaired(room)
	}
}

// roomClosed tells the participant other than leaver that the room is gone.
func (c *Coordinator) roomClosed(room rooms.Room, leaver string, reason CloseReason) {
	if peer := room.Peer(leaver); peer != "" {
		c.unbind(peer, room.Code)
		c.deliver(peer, Event{Type: EventRoomClosed, Code: room.Code, Reason: reason})
	}
	c.unbind(leaver, room.Code)
	c.log.Info("room closed",
		zap.String("code", room.Code),
		zap.String("client_id", leaver),
		zap.String("reason", string(reason)),
	)
	for _, o := range c.observers {
		o.RoomClosed(room.Code, reason)
	}
}

// deliver queues ev on the client's session and reports whether it was
// queued.
func (c *Coordinator) deliver(clientID string, ev Event) bool {
	c.mu.RLock()
	s := c.sessions[clientID]
	c.mu.RUnlock()

	if s == nil {
		c.log.Debug("no session for event",
			zap.String("client_id", clientID),
			zap.String("event", string(ev.Type)),
		)
		return false
	}
	if !s.send(ev) {
		c.log.Warn("event dropped, session buffer full or closed",
			zap.String("client_id", clientID),
			zap.String("event", string(ev.Type)),
		)
		return false
	}
	return true
}

func (c *Coordinator) relayed(kind EventType) {
	for _, o := range c.observers {
		o.Relayed(kind)
	}
}

func (c *Coordinator) reject(op, clientID, code string, err error) error {
	c.log.Debug("request rejected",
		zap.String("op", op),
		zap.String("client_id", clientID),
		zap.String("code", code),
		zap.Error(err),
	)
	for _, o := range c.observers {
		o.Rejected(op, err)
	}
	return err
}
