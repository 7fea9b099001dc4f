package signaling

import (
	"errors"

	"github.com/mossy-p/airtext/internal/rooms"
)

var (
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrCannotJoinOwnRoom = errors.New("cannot join your own room")
	ErrUnauthorized      = errors.New("operation not permitted for this role")
	ErrNoJoiner          = errors.New("no joiner in room")
	ErrPeerUnavailable   = errors.New("peer cannot receive events right now")

	ErrCodeInvalid         = rooms.ErrCodeInvalid
	ErrCodeTaken           = rooms.ErrCodeTaken
	ErrGenerationExhausted = rooms.ErrGenerationExhausted
)

// Wire error codes returned to clients.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomFull            = "ROOM_FULL"
	CodeCannotJoinOwnRoom   = "CANNOT_JOIN_OWN_ROOM"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNoJoiner            = "NO_JOINER"
	CodePeerUnavailable     = "PEER_UNAVAILABLE"
	CodeCodeInvalid         = "CODE_INVALID"
	CodeCodeTaken           = "CODE_TAKEN"
	CodeGenerationExhausted = "GENERATION_EXHAUSTED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInternal            = "INTERNAL"
)

// ErrorCode maps an operation error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrCannotJoinOwnRoom):
		return CodeCannotJoinOwnRoom
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrNoJoiner):
		return CodeNoJoiner
	case errors.Is(err, ErrPeerUnavailable):
		return CodePeerUnavailable
	case errors.Is(err, ErrCodeInvalid):
		return CodeCodeInvalid
	case errors.Is(err, ErrCodeTaken):
		return CodeCodeTaken
	case errors.Is(err, ErrGenerationExhausted):
		return CodeGenerationExhausted
	}
	return CodeInternal
}
