package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender writes text and files to a Transport. It never retries or drops
// chunks; reliability is the transport's job.
type Sender struct {
	t     Transport
	log   *zap.Logger
	newID func() string
	now   func() time.Time
}

func NewSender(t Transport, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		t:     t,
		log:   log,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// SendText sends a chat line and returns what was sent.
func (s *Sender) SendText(text string) (TextMessage, error) {
	m := TextMessage{ID: s.newID(), Text: text, Timestamp: s.now().UTC()}
	data, err := EncodeText(m)
	if err != nil {
		return TextMessage{}, &TransferError{Op: "encode text", Err: err}
	}
	if err := s.t.SendText(string(data)); err != nil {
		return TextMessage{}, &TransferError{Op: "send text", Err: err}
	}
	return m, nil
}

// SendFile announces the file then streams size bytes from r in ChunkSize
// frames, pausing whenever the transport's buffer is above HighWaterMark.
func (s *Sender) SendFile(ctx context.Context, name, mimeType string, size int64, r io.Reader) (FileMeta, error) {
	if size < 0 {
		return FileMeta{}, &TransferError{Op: "send metadata", File: name, Err: ErrNegativeSize}
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	meta := FileMeta{
		FileID:      s.newID(),
		Name:        name,
		Size:        size,
		MimeType:    mimeType,
		TotalChunks: TotalChunks(size),
	}

	data, err := EncodeFileMeta(meta)
	if err != nil {
		return meta, &TransferError{Op: "encode metadata", File: name, Err: err}
	}
	if err := s.t.SendText(string(data)); err != nil {
		return meta, &TransferError{Op: "send metadata", File: name, Err: err}
	}

	buf := make([]byte, ChunkSize)
	var sent int64
	for i := 0; i < meta.TotalChunks; i++ {
		want := size - sent
		if want > ChunkSize {
			want = ChunkSize
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrShortRead
			}
			return meta, &TransferError{Op: "read", File: name, Err: err}
		}

		if err := s.waitForWindow(ctx); err != nil {
			return meta, &TransferError{Op: "send", File: name, Err: err}
		}

		frame, err := EncodeChunk(meta.FileID, uint32(i), buf[:n])
		if err != nil {
			return meta, &TransferError{Op: "encode chunk", File: name, Err: err}
		}
		if err := s.t.Send(frame); err != nil {
			return meta, &TransferError{Op: "send", File: name, Err: err}
		}
		sent += int64(n)
	}

	s.log.Debug("file sent",
		zap.String("file_id", meta.FileID),
		zap.String("name", name),
		zap.Int64("size", size),
		zap.Int("chunks", meta.TotalChunks),
	)
	return meta, nil
}

// waitForWindow blocks while the transport buffer is above the high-water
// mark. It returns early when the transport closes or ctx is cancelled.
func (s *Sender) waitForWindow(ctx context.Context) error {
	for s.t.BufferedAmount() > HighWaterMark {
		select {
		case <-s.t.Drained():
		case <-s.t.Done():
			return ErrTransportClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-s.t.Done():
		return ErrTransportClosed
	default:
		return nil
	}
}
