package signaling

import "github.com/mossy-p/airtext/internal/rooms"

// State is the negotiation progress of a live room.
type State string

const (
	StateAwaitingJoiner State = "awaiting-joiner"
	StatePaired         State = "paired"
	StateOfferSent      State = "offer-sent"
	StateAnswerReceived State = "answer-received"
)

// StateOf derives the room's state from its bound seats and stored blobs.
func StateOf(room rooms.Room) State {
	switch {
	case !room.HasJoiner():
		return StateAwaitingJoiner
	case len(room.PendingAnswer) > 0:
		return StateAnswerReceived
	case len(room.PendingOffer) > 0:
		return StateOfferSent
	}
	return StatePaired
}
