package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruption is matched by every *CorruptionError.
	ErrCorruption = errors.New("audit corruption")

	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("audit persistence failure")

	// ErrOutOfRange is returned for sequences past the end of the log.
	ErrOutOfRange = errors.New("sequence out of range")

	// ErrNotFound is returned by stores for a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrTruncated is wrapped when the log is shorter than a known anchor.
	ErrTruncated = errors.New("audit log truncated")

	// ErrInvalidText is returned for a prompt or response that is not valid
	// UTF-8. Stores persist text, so such a record could not be read back
	// byte for byte.
	ErrInvalidText = errors.New("text is not valid UTF-8")
)

// CorruptionError reports the first record whose stored bytes do not match
// the chain.
type CorruptionError struct {
	Sequence uint64
	Err      error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("audit corruption at sequence %d: %v", e.Sequence, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruption
}

// Corrupt builds a *CorruptionError. Store drivers use it for rows they
// cannot decode.
func Corrupt(seq uint64, format string, args ...any) *CorruptionError {
	return &CorruptionError{Sequence: seq, Err: fmt.Errorf(format, args...)}
}

// PersistenceError reports a failed write of the record at Sequence. The log
// is left unchanged.
type PersistenceError struct {
	Sequence uint64
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting audit record %d: %v", e.Sequence, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
