package rooms

import (
	"encoding/json"
	"time"
)

// Room is a snapshot of a pairing. Values returned by the Registry are
// copies; mutating them has no effect on the registry.
type Room struct {
	Code           string
	CreatorID      string
	JoinerID       string
	CreatedAt      time.Time
	LastActivityAt time.Time
	PendingOffer   json.RawMessage
	PendingAnswer  json.RawMessage
}

// HasJoiner reports whether the second seat is bound.
func (r Room) HasJoiner() bool {
	return r.JoinerID != ""
}

// IsParticipant reports whether clientID is bound to either seat.
func (r Room) IsParticipant(clientID string) bool {
	return clientID != "" && (clientID == r.CreatorID || clientID == r.JoinerID)
}

// Peer returns the other bound participant, or "" if clientID is not bound
// or the other seat is empty.
func (r Room) Peer(clientID string) string {
	switch {
	case clientID == "":
		return ""
	case clientID == r.CreatorID:
		return r.JoinerID
	case clientID == r.JoinerID:
		return r.CreatorID
	}
	return ""
}

func (r *Room) clone() Room {
	c := *r
	c.PendingOffer = cloneBlob(r.PendingOffer)
	c.PendingAnswer = cloneBlob(r.PendingAnswer)
	return c
}

func cloneBlob(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
