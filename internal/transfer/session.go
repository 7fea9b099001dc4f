package transfer

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Session is the per-channel state of one peer connection: a sender, a
// receiver and the sink both report to. It is created when the channel
// opens and closed with it.
type Session struct {
	sender   *Sender
	receiver *Receiver
	sink     Sink
	log      *zap.Logger

	closeOnce sync.Once
}

func NewSession(t Transport, sink Sink, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		sender:   NewSender(t, log),
		receiver: NewReceiver(sink, log),
		sink:     sink,
		log:      log,
	}
}

// HandleMessage dispatches one inbound message. Errors are logged, never
// returned, so a malformed message cannot tear down the channel.
func (s *Session) HandleMessage(isText bool, data []byte) {
	var err error
	if isText {
		err = s.receiver.HandleControl(data)
	} else {
		err = s.receiver.HandleChunk(data)
	}
	if err != nil && !errors.Is(err, ErrTransportClosed) {
		s.log.Warn("inbound message dropped", zap.Bool("text", isText), zap.Error(err))
	}
}

// SendText sends a chat line and records it locally.
func (s *Session) SendText(text string) error {
	m, err := s.sender.SendText(text)
	if err != nil {
		return err
	}
	s.sink.Publish(ChatEntry{
		Kind:      KindText,
		ID:        m.ID,
		Local:     true,
		Timestamp: m.Timestamp,
		Text:      m.Text,
	})
	return nil
}

// SendFile streams a file and records it locally once every chunk is handed
// to the transport.
func (s *Session) SendFile(ctx context.Context, name, mimeType string, size int64, r io.Reader) (FileMeta, error) {
	meta, err := s.sender.SendFile(ctx, name, mimeType, size, r)
	if err != nil {
		return meta, err
	}
	s.sink.Publish(ChatEntry{
		Kind:      KindFile,
		ID:        meta.FileID,
		Local:     true,
		Timestamp: s.sender.now().UTC(),
		File: &FileProgress{
			Meta:     meta,
			Received: meta.TotalChunks,
			Total:    meta.TotalChunks,
		},
	})
	return meta, nil
}

// Pending returns the number of inbound transfers in flight.
func (s *Session) Pending() int {
	return s.receiver.Pending()
}

// Close discards partial inbound transfers.
func (s *Session) Close() {
	s.closeOnce.Do(s.receiver.Close)
}
