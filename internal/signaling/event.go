package signaling

import "encoding/json"

// Role is a participant's permanent seat in a room.
type Role string

const (
	RoleCreator Role = "creator"
	RoleJoiner  Role = "joiner"
)

// EventType names a server push event.
type EventType string

const (
	EventPeerConnected EventType = "peer-connected"
	EventOffer         EventType = "offer"
	EventAnswer        EventType = "answer"
	EventICECandidate  EventType = "ice-candidate"
	EventRoomClosed    EventType = "room-closed"
)

// CloseReason explains why a room went away.
type CloseReason string

const (
	ReasonPeerLeft CloseReason = "peer-left"
	ReasonClosed   CloseReason = "closed"
	ReasonExpired  CloseReason = "expired"
)

// Event is pushed to a session's outbound channel. Payload carries the
// relayed negotiation blob verbatim.
type Event struct {
	Type    EventType
	Code    string
	Payload json.RawMessage
	Reason  CloseReason
}
