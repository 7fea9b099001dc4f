// Package transfer implements the text and chunked file protocol spoken over
// an open peer data channel.
package transfer

import (
	"encoding/binary"
	"fmt"
)

const (
	// ChunkSize is the payload size of every chunk except the last.
	ChunkSize = 16 * 1024
	// IDSize is the length of the ASCII transfer id at the start of a frame.
	IDSize = 36
	// HeaderSize is the id plus a little-endian uint32 chunk index.
	HeaderSize = IDSize + 4

	// HighWaterMark is the buffered amount above which the sender waits.
	HighWaterMark = 8 * ChunkSize
	// LowWaterMark is where the transport signals the buffer has drained.
	LowWaterMark = 4 * ChunkSize

	// progressEvery throttles receiver progress updates.
	progressEvery = 8
)

// Chunk is one decoded binary frame. Payload aliases the frame buffer.
type Chunk struct {
	TransferID string
	Index      uint32
	Payload    []byte
}

// TotalChunks returns how many chunks a file of size bytes is split into.
// Empty files still produce a single empty chunk.
func TotalChunks(size int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

// EncodeChunk builds a frame for the given transfer id and index.
func EncodeChunk(transferID string, index uint32, payload []byte) ([]byte, error) {
	if err := validateID(transferID); err != nil {
		return nil, err
	}
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame, transferID)
	binary.LittleEndian.PutUint32(frame[IDSize:HeaderSize], index)
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeChunk parses a frame produced by EncodeChunk.
func DecodeChunk(frame []byte) (Chunk, error) {
	if len(frame) < HeaderSize {
		return Chunk{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidFrame, len(frame))
	}
	id := string(frame[:IDSize])
	if err := validateID(id); err != nil {
		return Chunk{}, err
	}
	return Chunk{
		TransferID: id,
		Index:      binary.LittleEndian.Uint32(frame[IDSize:HeaderSize]),
		Payload:    frame[HeaderSize:],
	}, nil
}

func validateID(id string) error {
	if len(id) != IDSize {
		return fmt.Errorf("%w: transfer id must be %d bytes, got %d", ErrInvalidFrame, IDSize, len(id))
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return fmt.Errorf("%w: transfer id is not printable ASCII", ErrInvalidFrame)
		}
	}
	return nil
}
