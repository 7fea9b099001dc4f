package signaling

import "github.com/mossy-p/airtext/internal/rooms"

// Observer is notified of room lifecycle and relay outcomes. Implementations
// must not block.
type Observer interface {
	RoomOpened(room rooms.Room)
	RoomPaired(room rooms.Room)
	RoomClosed(code string, reason CloseReason)
	Relayed(kind EventType)
	Rejected(op string, err error)
}

// NopObserver can be embedded by observers that only care about some hooks.
type NopObserver struct{}

func (NopObserver) RoomOpened(rooms.Room)          {}
func (NopObserver) RoomPaired(rooms.Room)          {}
func (NopObserver) RoomClosed(string, CloseReason) {}
func (NopObserver) Relayed(EventType)              {}
func (NopObserver) Rejected(string, error)         {}
