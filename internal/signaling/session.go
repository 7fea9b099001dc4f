package signaling

import "sync"

// Session is the per-connection handle owned by the Coordinator. The
// Coordinator is the only writer to its event channel and closes it when the
// session ends or is superseded.
type Session struct {
	clientID string
	gen      uint64

	mu     sync.Mutex
	events chan Event
	closed bool
}

func newSession(clientID string, gen uint64, buffer int) *Session {
	return &Session{
		clientID: clientID,
		gen:      gen,
		events:   make(chan Event, buffer),
	}
}

func (s *Session) ClientID() string { return s.clientID }

// Events yields pushed events until the session is closed.
func (s *Session) Events() <-chan Event { return s.events }

// send enqueues ev without blocking and reports whether it was accepted.
func (s *Session) send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
