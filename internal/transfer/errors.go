package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrInvalidFrame    = errors.New("invalid chunk frame")
	ErrInvalidControl  = errors.New("invalid control message")
	ErrShortRead       = errors.New("file ended before its declared size")
	ErrNegativeSize    = errors.New("negative file size")
)

// TransferError records which operation on which file failed.
type TransferError struct {
	Op   string
	File string
	Err  error
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
