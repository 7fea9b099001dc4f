package transfer

import (
	"errors"
	"sync"
	"sync/atomic"
)

// memTransport records everything sent and lets tests drive the buffered
// amount and the drained/closed signals.
type memTransport struct {
	mu     sync.Mutex
	texts  []string
	frames [][]byte
	kinds  []bool // true for text, in send order

	buffered atomic.Uint64
	drained  chan struct{}
	done     chan struct{}
	closed   sync.Once

	// deliver, when set, forwards each message as it is sent.
	deliver func(isText bool, data []byte)
}

func newMemTransport() *memTransport {
	return &memTransport{
		drained: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (m *memTransport) SendText(text string) error {
	select {
	case <-m.done:
		return errors.New("closed")
	default:
	}
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.kinds = append(m.kinds, true)
	deliver := m.deliver
	m.mu.Unlock()
	if deliver != nil {
		deliver(true, []byte(text))
	}
	return nil
}

func (m *memTransport) Send(data []byte) error {
	select {
	case <-m.done:
		return errors.New("closed")
	default:
	}
	frame := append([]byte(nil), data...)
	m.mu.Lock()
	m.frames = append(m.frames, frame)
	m.kinds = append(m.kinds, false)
	deliver := m.deliver
	m.mu.Unlock()
	if deliver != nil {
		deliver(false, frame)
	}
	return nil
}

func (m *memTransport) BufferedAmount() uint64 { return m.buffered.Load() }

func (m *memTransport) Drained() <-chan struct{} { return m.drained }

func (m *memTransport) Done() <-chan struct{} { return m.done }

func (m *memTransport) drain() {
	m.buffered.Store(0)
	select {
	case m.drained <- struct{}{}:
	default:
	}
}

func (m *memTransport) close() {
	m.closed.Do(func() { close(m.done) })
}

func (m *memTransport) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

func (m *memTransport) snapshot() ([]string, [][]byte, []bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...), append([][]byte(nil), m.frames...), append([]bool(nil), m.kinds...)
}
