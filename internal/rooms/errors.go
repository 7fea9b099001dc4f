package rooms

import "errors"

var (
	ErrCodeInvalid         = errors.New("room code is invalid")
	ErrCodeTaken           = errors.New("room code is already in use")
	ErrGenerationExhausted = errors.New("could not generate a unique room code")
	ErrNotFound            = errors.New("room not found")
	ErrAlreadyFull         = errors.New("room already has a joiner")
)
