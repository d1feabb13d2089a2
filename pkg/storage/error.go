package storage

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by a driver after Close.
var ErrClosed = errors.New("storage driver closed")

// SequenceError is returned when a record is appended out of order.
type SequenceError struct {
	Got  uint64
	Want uint64
}

func (e SequenceError) Error() string {
	return fmt.Sprintf("append out of order: got sequence %d, want %d", e.Got, e.Want)
}
