// Package peer drives one WebRTC connection between the two participants of
// a room and exposes its data channel as a transfer.Transport.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

var ErrConnectionFailed = errors.New("peer connection failed")

// Signaler carries negotiation metadata to the other participant.
type Signaler interface {
	Offer(ctx context.Context, code string, offer json.RawMessage) error
	Answer(ctx context.Context, code string, answer json.RawMessage) error
	ICECandidate(code string, candidate json.RawMessage) error
}

type Config struct {
	ICEServers []string
	// API overrides the default pion API, e.g. with a virtual network.
	API *webrtc.API
}

// Peer is one side of a room's connection. The creator calls Offer; the
// joiner calls HandleOffer when the offer arrives. Both feed remote
// candidates to HandleCandidate.
type Peer struct {
	pc   *webrtc.PeerConnection
	sig  Signaler
	code string
	log  *zap.Logger

	mu        sync.Mutex
	remoteSet bool
	queued    []webrtc.ICECandidateInit

	ready      chan *Transport
	failed     chan struct{}
	failedOnce sync.Once
}

func New(cfg Config, sig Signaler, code string, log *zap.Logger) (*Peer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	api := cfg.API
	if api == nil {
		api = webrtc.NewAPI()
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		iceServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:     pc,
		sig:    sig,
		code:   code,
		log:    log.With(zap.String("code", code)),
		ready:  make(chan *Transport, 1),
		failed: make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Warn("encode ICE candidate", zap.Error(err))
			return
		}
		if err := sig.ICECandidate(code, data); err != nil {
			p.log.Debug("send ICE candidate", zap.Error(err))
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.failedOnce.Do(func() { close(p.failed) })
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			p.log.Warn("unexpected data channel", zap.String("label", dc.Label()))
			return
		}
		p.watch(dc)
	})
	return p, nil
}

// Offer opens the data channel and sends the offer.
func (p *Peer) Offer(ctx context.Context) error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	p.watch(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	data, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return err
	}
	return p.sig.Offer(ctx, p.code, data)
}

// HandleOffer applies the creator's offer and sends an answer.
func (p *Peer) HandleOffer(ctx context.Context, raw json.RawMessage) error {
	if err := p.setRemote(raw, webrtc.SDPTypeOffer); err != nil {
		return err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	data, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return err
	}
	return p.sig.Answer(ctx, p.code, data)
}

// HandleAnswer applies the joiner's answer.
func (p *Peer) HandleAnswer(raw json.RawMessage) error {
	return p.setRemote(raw, webrtc.SDPTypeAnswer)
}

// HandleCandidate adds a remote candidate, holding it until the remote
// description is known.
func (p *Peer) HandleCandidate(raw json.RawMessage) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.queued = append(p.queued, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

// Transport waits for the data channel to open.
func (p *Peer) Transport(ctx context.Context) (*Transport, error) {
	select {
	case t := <-p.ready:
		return t, nil
	case <-p.failed:
		return nil, ErrConnectionFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Failed is closed when the connection fails or is closed.
func (p *Peer) Failed() <-chan struct{} {
	return p.failed
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func (p *Peer) setRemote(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("parse session description: %w", err)
	}
	if desc.Type != want {
		return fmt.Errorf("expected %s, got %s", want, desc.Type)
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	queued := p.queued
	p.queued = nil
	p.mu.Unlock()

	for _, c := range queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Debug("add queued ICE candidate", zap.Error(err))
		}
	}
	return nil
}

// watch wraps dc immediately so no inbound message is missed, and hands the
// transport out once the channel opens.
func (p *Peer) watch(dc *webrtc.DataChannel) {
	t := newTransport(dc)
	dc.OnOpen(func() {
		p.log.Debug("data channel open")
		select {
		case p.ready <- t:
		default:
		}
	})
}
