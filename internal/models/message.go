package models

import "encoding/json"

// SignalType names a control channel message.
type SignalType string

const (
	SignalTypeCreateRoom   SignalType = "create-room"
	SignalTypeJoinRoom     SignalType = "join-room"
	SignalTypeEnterRoom    SignalType = "enter-room"
	SignalTypeOffer        SignalType = "offer"
	SignalTypeAnswer       SignalType = "answer"
	SignalTypeICECandidate SignalType = "ice-candidate"

	SignalTypeReply         SignalType = "reply"
	SignalTypePeerConnected SignalType = "peer-connected"
	SignalTypeRoomClosed    SignalType = "room-closed"
)

// SignalMessage is a client request. Offer, Answer and Candidate are relayed
// without inspection.
type SignalMessage struct {
	Type      SignalType      `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Code      string          `json:"code,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Reply answers exactly one request, matched by RequestID.
type Reply struct {
	Type      SignalType `json:"type"`
	RequestID string     `json:"requestId"`
	Success   bool       `json:"success"`
	Code      string     `json:"code,omitempty"`
	Role      string     `json:"role,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorCode string     `json:"errorCode,omitempty"`
}

// PushEvent is sent by the server without a prior request.
type PushEvent struct {
	Type      SignalType      `json:"type"`
	Code      string          `json:"code"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// ServerMessage decodes either a Reply or a PushEvent, routed on Type.
type ServerMessage struct {
	Type      SignalType      `json:"type"`
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Code      string          `json:"code"`
	Role      string          `json:"role"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"errorCode"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
	Reason    string          `json:"reason"`
}
