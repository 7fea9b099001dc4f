package transfer

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	typeText     = "text"
	typeFileMeta = "file-meta"

	defaultMimeType = "application/octet-stream"
)

// TextMessage is a chat line sent as a single control message.
type TextMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FileMeta announces a file transfer before its chunks.
type FileMeta struct {
	FileID      string `json:"fileId"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimeType"`
	TotalChunks int    `json:"totalChunks"`
}

type wireText struct {
	Type string `json:"type"`
	TextMessage
}

type wireFileMeta struct {
	Type string `json:"type"`
	FileMeta
}

// EncodeText renders a text control message.
func EncodeText(m TextMessage) ([]byte, error) {
	return json.Marshal(wireText{Type: typeText, TextMessage: m})
}

// EncodeFileMeta renders a file metadata control message.
func EncodeFileMeta(m FileMeta) ([]byte, error) {
	return json.Marshal(wireFileMeta{Type: typeFileMeta, FileMeta: m})
}

// DecodeControl parses a control message into a TextMessage or a FileMeta.
func DecodeControl(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}

	switch head.Type {
	case typeText:
		var m wireText
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
		}
		return m.TextMessage, nil
	case typeFileMeta:
		var m wireFileMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
		}
		if err := validateID(m.FileID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
		}
		if m.Size < 0 {
			return nil, fmt.Errorf("%w: negative size", ErrInvalidControl)
		}
		if m.TotalChunks != TotalChunks(m.Size) {
			return nil, fmt.Errorf("%w: %d chunks does not match size %d", ErrInvalidControl, m.TotalChunks, m.Size)
		}
		return m.FileMeta, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidControl, head.Type)
}
