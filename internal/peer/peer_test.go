package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mossy-p/airtext/internal/transfer"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// loopSignaler forwards negotiation straight into the other peer.
type loopSignaler struct {
	t      *testing.T
	remote func() *Peer
}

func (s *loopSignaler) Offer(ctx context.Context, _ string, offer json.RawMessage) error {
	go func() {
		if err := s.remote().HandleOffer(ctx, offer); err != nil {
			s.t.Errorf("HandleOffer: %v", err)
		}
	}()
	return nil
}

func (s *loopSignaler) Answer(_ context.Context, _ string, answer json.RawMessage) error {
	go func() {
		if err := s.remote().HandleAnswer(answer); err != nil {
			s.t.Errorf("HandleAnswer: %v", err)
		}
	}()
	return nil
}

func (s *loopSignaler) ICECandidate(_ string, candidate json.RawMessage) error {
	return s.remote().HandleCandidate(candidate)
}

func newVNetAPIs(t *testing.T) (*webrtc.API, *webrtc.API) {
	t.Helper()
	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	apis := make([]*webrtc.API, 0, 2)
	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		n, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{ip}})
		if err != nil {
			t.Fatalf("new net %s: %v", ip, err)
		}
		if err := router.AddNet(n); err != nil {
			t.Fatalf("add net %s: %v", ip, err)
		}
		se := webrtc.SettingEngine{}
		se.SetNet(n)
		apis = append(apis, webrtc.NewAPI(webrtc.WithSettingEngine(se)))
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}
	return apis[0], apis[1]
}

func connectPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	apiA, apiB := newVNetAPIs(t)

	var creator, joiner *Peer
	sigA := &loopSignaler{t: t, remote: func() *Peer { return joiner }}
	sigB := &loopSignaler{t: t, remote: func() *Peer { return creator }}

	var err error
	creator, err = New(Config{API: apiA}, sigA, "K7M3Q9", zap.NewNop())
	if err != nil {
		t.Fatalf("New creator: %v", err)
	}
	joiner, err = New(Config{API: apiB}, sigB, "K7M3Q9", zap.NewNop())
	if err != nil {
		t.Fatalf("New joiner: %v", err)
	}
	t.Cleanup(func() {
		creator.Close()
		joiner.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := creator.Offer(ctx); err != nil {
		t.Fatalf("Offer: %v", err)
	}

	ta, err := creator.Transport(ctx)
	if err != nil {
		t.Fatalf("creator transport: %v", err)
	}
	tb, err := joiner.Transport(ctx)
	if err != nil {
		t.Fatalf("joiner transport: %v", err)
	}
	return ta, tb
}

func TestPeer_TransferOverDataChannel(t *testing.T) {
	ta, tb := connectPair(t)

	logA, logB := transfer.NewChatLog(), transfer.NewChatLog()
	sa := transfer.NewSession(ta, logA, zap.NewNop())
	sb := transfer.NewSession(tb, logB, zap.NewNop())
	ta.Deliver(sa.HandleMessage)
	tb.Deliver(sb.HandleMessage)

	if err := sa.SendText("hello over webrtc"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 20*transfer.ChunkSize/3+11)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	meta, err := sa.SendFile(ctx, "blob.bin", "", int64(len(payload)), bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := logB.Get(meta.FileID); ok && e.File.Complete() {
			if !bytes.Equal(e.File.Content, payload) {
				t.Fatalf("received content differs")
			}
			entries := logB.Entries()
			if entries[0].Kind != transfer.KindText || entries[0].Text != "hello over webrtc" {
				t.Fatalf("first entry = %+v", entries[0])
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file did not arrive")
}

func TestPeer_CloseSignalsTransport(t *testing.T) {
	ta, tb := connectPair(t)

	if err := ta.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for name, tr := range map[string]*Transport{"local": ta, "remote": tb} {
		select {
		case <-tr.Done():
		case <-time.After(10 * time.Second):
			t.Fatalf("%s transport not done after close", name)
		}
	}
	if err := ta.SendText("late"); err == nil {
		t.Fatalf("send on a closed channel succeeded")
	}
}

func TestPeer_CandidatesBeforeRemoteDescriptionAreHeld(t *testing.T) {
	p, err := New(Config{}, &loopSignaler{t: t}, "ABCDEF", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	c := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.9 5000 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	if err := p.HandleCandidate(c); err != nil {
		t.Fatalf("HandleCandidate: %v", err)
	}
	p.mu.Lock()
	n := len(p.queued)
	p.mu.Unlock()
	if n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}
	if err := p.HandleCandidate(json.RawMessage(`not json`)); err == nil {
		t.Fatalf("malformed candidate accepted")
	}
	if err := p.HandleAnswer(json.RawMessage(`{"type":"offer","sdp":""}`)); err == nil {
		t.Fatalf("offer accepted as an answer")
	}
}
