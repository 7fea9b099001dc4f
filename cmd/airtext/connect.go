package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mossy-p/airtext/internal/client"
	"github.com/mossy-p/airtext/internal/logger"
	"github.com/mossy-p/airtext/internal/models"
	"github.com/mossy-p/airtext/internal/peer"
)

// link bundles the signaling connection and the peer connection of one
// room participant.
type link struct {
	client *client.Client
	peer   *peer.Peer
	log    *zap.Logger

	joined     chan struct{}
	joinedOnce sync.Once
	closed     chan string
}

func newLogger() (*zap.Logger, error) {
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	return logger.New("development", level)
}

// dial obtains a session, the server's ICE list, and an open signaling
// connection.
func dial(ctx context.Context, log *zap.Logger) (*client.Client, models.ClientConfig, error) {
	sess, err := client.NewSession(ctx, flagServer, flagToken)
	if err != nil {
		return nil, models.ClientConfig{}, fmt.Errorf("obtain session: %w", err)
	}
	cfg, err := client.FetchConfig(ctx, flagServer)
	if err != nil {
		return nil, models.ClientConfig{}, fmt.Errorf("fetch config: %w", err)
	}
	url, err := client.SignalURL(flagServer, sess.Token)
	if err != nil {
		return nil, models.ClientConfig{}, err
	}
	cl, err := client.Dial(ctx, url, log)
	if err != nil {
		return nil, models.ClientConfig{}, fmt.Errorf("connect to %s: %w", flagServer, err)
	}
	log.Debug("signaling connected", zap.String("client_id", sess.ClientID))
	return cl, cfg, nil
}

func newLink(cl *client.Client, cfg models.ClientConfig, code string, log *zap.Logger) (*link, error) {
	var urls []string
	for _, s := range cfg.ICEServers {
		urls = append(urls, s.URLs...)
	}
	p, err := peer.New(peer.Config{ICEServers: urls}, cl, code, log)
	if err != nil {
		return nil, err
	}
	return &link{
		client: cl,
		peer:   p,
		log:    log,
		joined: make(chan struct{}),
		closed: make(chan string, 1),
	}, nil
}

// pump routes push events into the peer connection until the signaling
// connection ends or the room closes.
func (l *link) pump(ctx context.Context) {
	for ev := range l.client.Events() {
		var err error
		switch ev.Type {
		case models.SignalTypePeerConnected:
			l.joinedOnce.Do(func() { close(l.joined) })
		case models.SignalTypeOffer:
			err = l.peer.HandleOffer(ctx, ev.Offer)
		case models.SignalTypeAnswer:
			err = l.peer.HandleAnswer(ev.Answer)
		case models.SignalTypeICECandidate:
			err = l.peer.HandleCandidate(ev.Candidate)
		case models.SignalTypeRoomClosed:
			l.closed <- ev.Reason
			return
		}
		if err != nil {
			l.log.Warn("negotiation event rejected", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

// waitJoined blocks until the other participant enters the room.
func (l *link) waitJoined(ctx context.Context) error {
	select {
	case <-l.joined:
		return nil
	case reason := <-l.closed:
		return fmt.Errorf("room closed: %s", reason)
	case <-l.client.Done():
		return client.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transport waits for the data channel, giving up if the room closes or the
// connection fails first.
func (l *link) transport(ctx context.Context) (*peer.Transport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reason error
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case r := <-l.closed:
			reason = fmt.Errorf("room closed before the connection opened: %s", r)
		case <-l.peer.Failed():
			reason = peer.ErrConnectionFailed
		case <-ctx.Done():
			return
		}
		cancel()
	}()

	t, err := l.peer.Transport(ctx)
	cancel()
	<-stopped
	if err != nil && reason != nil {
		return nil, reason
	}
	return t, err
}

func (l *link) Close() {
	_ = l.peer.Close()
	_ = l.client.Close()
}
