package peer

import (
	"sync"

	"github.com/mossy-p/airtext/internal/transfer"
	"github.com/pion/webrtc/v4"
)

// DataChannelLabel names the single ordered, reliable channel peers share.
const DataChannelLabel = "messages"

// Transport adapts a pion DataChannel to transfer.Transport. Messages that
// arrive before Deliver is called are held and replayed in order.
type Transport struct {
	dc *webrtc.DataChannel

	drained   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	handler func(isText bool, data []byte)
	held    []webrtc.DataChannelMessage
}

var _ transfer.Transport = (*Transport)(nil)

func newTransport(dc *webrtc.DataChannel) *Transport {
	t := &Transport{
		dc:      dc,
		drained: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	dc.SetBufferedAmountLowThreshold(transfer.LowWaterMark)
	dc.OnBufferedAmountLow(func() {
		select {
		case t.drained <- struct{}{}:
		default:
		}
	})
	dc.OnClose(func() {
		t.closeOnce.Do(func() { close(t.done) })
	})
	dc.OnMessage(t.onMessage)
	return t
}

func (t *Transport) onMessage(msg webrtc.DataChannelMessage) {
	t.mu.Lock()
	h := t.handler
	if h == nil {
		msg.Data = append([]byte(nil), msg.Data...)
		t.held = append(t.held, msg)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	h(msg.IsString, msg.Data)
}

// Deliver routes inbound messages to fn, starting with any held ones.
func (t *Transport) Deliver(fn func(isText bool, data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range t.held {
		fn(msg.IsString, msg.Data)
	}
	t.held = nil
	t.handler = fn
}

func (t *Transport) SendText(text string) error {
	return t.dc.SendText(text)
}

func (t *Transport) Send(data []byte) error {
	return t.dc.Send(data)
}

func (t *Transport) BufferedAmount() uint64 {
	return t.dc.BufferedAmount()
}

func (t *Transport) Drained() <-chan struct{} { return t.drained }

func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) Close() error {
	return t.dc.Close()
}
