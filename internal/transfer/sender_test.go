package transfer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSendFile_MetadataThenOrderedChunks(t *testing.T) {
	tr := newMemTransport()
	s := NewSender(tr, zaptest.NewLogger(t))

	payload := bytes.Repeat([]byte("abcdefgh"), (3*ChunkSize+100)/8)
	meta, err := s.SendFile(context.Background(), "big.bin", "", int64(len(payload)), bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if meta.TotalChunks != 4 || meta.MimeType != "application/octet-stream" || len(meta.FileID) != IDSize {
		t.Fatalf("meta = %+v", meta)
	}

	texts, frames, kinds := tr.snapshot()
	if len(texts) != 1 || !kinds[0] {
		t.Fatalf("expected metadata first, kinds = %v", kinds)
	}
	decoded, err := DecodeControl([]byte(texts[0]))
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if decoded.(FileMeta) != meta {
		t.Fatalf("wire meta %+v != returned %+v", decoded, meta)
	}

	if len(frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(frames))
	}
	var joined []byte
	for i, f := range frames {
		c, err := DecodeChunk(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if c.Index != uint32(i) || c.TransferID != meta.FileID {
			t.Fatalf("frame %d header = %s/%d", i, c.TransferID, c.Index)
		}
		if i < 3 && len(c.Payload) != ChunkSize {
			t.Fatalf("frame %d payload = %d bytes", i, len(c.Payload))
		}
		joined = append(joined, c.Payload...)
	}
	if !bytes.Equal(joined, payload) {
		t.Fatalf("chunks do not reassemble to the payload")
	}
}

func TestSendFile_EmptyFileSendsOneEmptyChunk(t *testing.T) {
	tr := newMemTransport()
	s := NewSender(tr, zaptest.NewLogger(t))

	meta, err := s.SendFile(context.Background(), "empty", "text/plain", 0, bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if meta.TotalChunks != 1 {
		t.Fatalf("TotalChunks = %d", meta.TotalChunks)
	}
	_, frames, _ := tr.snapshot()
	if len(frames) != 1 || len(frames[0]) != HeaderSize {
		t.Fatalf("frames = %d, first len %d", len(frames), len(frames[0]))
	}
}

func TestSendFile_ShortReader(t *testing.T) {
	tr := newMemTransport()
	s := NewSender(tr, zaptest.NewLogger(t))

	_, err := s.SendFile(context.Background(), "f", "", 2*ChunkSize, bytes.NewReader(make([]byte, ChunkSize+1)))
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
	var te *TransferError
	if !errors.As(err, &te) || te.File != "f" {
		t.Fatalf("expected TransferError for f, got %v", err)
	}
}

func TestSendFile_NegativeSize(t *testing.T) {
	tr := newMemTransport()
	s := NewSender(tr, zaptest.NewLogger(t))

	_, err := s.SendFile(context.Background(), "f", "", -1, bytes.NewReader(nil))
	if !errors.Is(err, ErrNegativeSize) {
		t.Fatalf("err = %v, want ErrNegativeSize", err)
	}
	var te *TransferError
	if !errors.As(err, &te) || te.File != "f" {
		t.Fatalf("expected TransferError for f, got %v", err)
	}
	if texts, frames, _ := tr.snapshot(); len(texts) != 0 || len(frames) != 0 {
		t.Fatalf("sent %d texts and %d frames for a rejected file", len(texts), len(frames))
	}
}

func TestSendFile_WaitsForDrain(t *testing.T) {
	tr := newMemTransport()
	tr.buffered.Store(HighWaterMark + 1)
	s := NewSender(tr, zaptest.NewLogger(t))

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendFile(context.Background(), "f", "", 10, bytes.NewReader(make([]byte, 10)))
		errc <- err
	}()

	select {
	case err := <-errc:
		t.Fatalf("SendFile returned while above the high-water mark: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if n := tr.frameCount(); n != 0 {
		t.Fatalf("sent %d frames while above the high-water mark", n)
	}

	tr.drain()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("SendFile: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("SendFile did not resume after drain")
	}
	if n := tr.frameCount(); n != 1 {
		t.Fatalf("frames = %d, want 1", n)
	}
}

func TestSendFile_StaleDrainSignalDoesNotBypassWindow(t *testing.T) {
	tr := newMemTransport()
	tr.buffered.Store(HighWaterMark + 1)
	tr.drained <- struct{}{} // left over from earlier, buffer still full
	s := NewSender(tr, zaptest.NewLogger(t))

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendFile(context.Background(), "f", "", 10, bytes.NewReader(make([]byte, 10)))
		errc <- err
	}()

	select {
	case err := <-errc:
		t.Fatalf("SendFile returned on a stale drain signal: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	tr.drain()
	if err := <-errc; err != nil {
		t.Fatalf("SendFile: %v", err)
	}
}

func TestSendFile_CloseWhileWaitingAborts(t *testing.T) {
	tr := newMemTransport()
	tr.buffered.Store(HighWaterMark + 1)
	s := NewSender(tr, zaptest.NewLogger(t))

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendFile(context.Background(), "f", "", 3*ChunkSize, bytes.NewReader(make([]byte, 3*ChunkSize)))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	tr.close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrTransportClosed) {
			t.Fatalf("err = %v, want ErrTransportClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not resolve after close")
	}
	if n := tr.frameCount(); n != 0 {
		t.Fatalf("frames = %d after close", n)
	}
}

func TestSendFile_ContextCancelAborts(t *testing.T) {
	tr := newMemTransport()
	tr.buffered.Store(HighWaterMark + 1)
	s := NewSender(tr, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.SendFile(ctx, "f", "", 1, bytes.NewReader([]byte{1}))
		errc <- err
	}()
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not resolve after cancel")
	}
}

func TestSendFile_ClosedTransportFailsMetadata(t *testing.T) {
	tr := newMemTransport()
	tr.close()
	s := NewSender(tr, zaptest.NewLogger(t))

	_, err := s.SendFile(context.Background(), "f", "", 1, bytes.NewReader([]byte{1}))
	var te *TransferError
	if !errors.As(err, &te) || te.Op != "send metadata" {
		t.Fatalf("err = %v", err)
	}
}

func TestSendText(t *testing.T) {
	tr := newMemTransport()
	s := NewSender(tr, zaptest.NewLogger(t))

	m, err := s.SendText("hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	texts, _, _ := tr.snapshot()
	decoded, err := DecodeControl([]byte(texts[0]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(TextMessage)
	if got.ID != m.ID || got.Text != "hello" || !got.Timestamp.Equal(m.Timestamp) {
		t.Fatalf("decoded %+v, sent %+v", got, m)
	}
}
