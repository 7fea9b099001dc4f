package transfer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type incomingBuffer struct {
	meta     FileMeta
	started  time.Time
	received map[uint32][]byte
	bytes    int64
}

// Receiver reassembles incoming files keyed by transfer id and publishes
// entries to its Sink. Publication happens under the receiver's lock, so
// Sink implementations must not call back into the Receiver.
type Receiver struct {
	sink Sink
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	buffers map[string]*incomingBuffer
	closed  bool
}

func NewReceiver(sink Sink, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{
		sink:    sink,
		log:     log,
		now:     time.Now,
		buffers: make(map[string]*incomingBuffer),
	}
}

// HandleControl processes a text or file-meta control message.
func (r *Receiver) HandleControl(data []byte) error {
	msg, err := DecodeControl(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrTransportClosed
	}

	switch m := msg.(type) {
	case TextMessage:
		r.sink.Publish(ChatEntry{
			Kind:      KindText,
			ID:        m.ID,
			Timestamp: m.Timestamp,
			Text:      m.Text,
		})
	case FileMeta:
		if _, exists := r.buffers[m.FileID]; exists {
			r.log.Warn("duplicate file metadata ignored", zap.String("file_id", m.FileID))
			return nil
		}
		buf := &incomingBuffer{
			meta:     m,
			started:  r.now(),
			received: make(map[uint32][]byte),
		}
		r.buffers[m.FileID] = buf
		r.publishFile(buf, nil)
	}
	return nil
}

// HandleChunk stores one binary frame. Chunks for unknown transfers are
// logged and dropped, as are chunks that are oversized or would carry the
// file past its declared size.
func (r *Receiver) HandleChunk(frame []byte) error {
	chunk, err := DecodeChunk(frame)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[chunk.TransferID]
	if !ok {
		r.log.Warn("chunk for unknown transfer dropped",
			zap.String("file_id", chunk.TransferID),
			zap.Uint32("index", chunk.Index),
		)
		return nil
	}
	if int64(chunk.Index) >= int64(buf.meta.TotalChunks) {
		r.log.Warn("chunk index out of range dropped",
			zap.String("file_id", chunk.TransferID),
			zap.Uint32("index", chunk.Index),
			zap.Int("total", buf.meta.TotalChunks),
		)
		return nil
	}

	if len(chunk.Payload) > ChunkSize {
		r.log.Warn("oversized chunk dropped",
			zap.String("file_id", chunk.TransferID),
			zap.Uint32("index", chunk.Index),
			zap.Int("len", len(chunk.Payload)),
		)
		return nil
	}

	prev, dup := buf.received[chunk.Index]
	total := buf.bytes - int64(len(prev)) + int64(len(chunk.Payload))
	if total > buf.meta.Size {
		r.log.Warn("chunk beyond declared size dropped",
			zap.String("file_id", chunk.TransferID),
			zap.Uint32("index", chunk.Index),
			zap.Int64("declared", buf.meta.Size),
		)
		return nil
	}

	payload := make([]byte, len(chunk.Payload))
	copy(payload, chunk.Payload)
	buf.received[chunk.Index] = payload
	buf.bytes = total
	if dup {
		return nil
	}

	n := len(buf.received)
	switch {
	case n == buf.meta.TotalChunks:
		delete(r.buffers, chunk.TransferID)
		r.publishFile(buf, r.assemble(buf))
	case n%progressEvery == 0:
		r.publishFile(buf, nil)
	}
	return nil
}

// assemble concatenates chunks in index order.
func (r *Receiver) assemble(buf *incomingBuffer) []byte {
	content := make([]byte, 0, buf.bytes)
	for i := 0; i < buf.meta.TotalChunks; i++ {
		content = append(content, buf.received[uint32(i)]...)
	}
	if int64(len(content)) != buf.meta.Size {
		r.log.Warn("reassembled file is shorter than declared",
			zap.String("file_id", buf.meta.FileID),
			zap.Int64("declared", buf.meta.Size),
			zap.Int("actual", len(content)),
		)
	}
	return content
}

func (r *Receiver) publishFile(buf *incomingBuffer, content []byte) {
	r.sink.Publish(ChatEntry{
		Kind:      KindFile,
		ID:        buf.meta.FileID,
		Timestamp: buf.started,
		File: &FileProgress{
			Meta:     buf.meta,
			Received: len(buf.received),
			Total:    buf.meta.TotalChunks,
			Content:  content,
		},
	})
}

// Pending returns the number of transfers still in flight.
func (r *Receiver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// Close discards every partial transfer. Later messages are rejected.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id := range r.buffers {
		r.log.Debug("partial transfer discarded", zap.String("file_id", id))
	}
	r.buffers = make(map[string]*incomingBuffer)
}
