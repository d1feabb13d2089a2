package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("vector storage error")

	// ErrNotFound is returned when a chunk is not found in the vector store.
	ErrNotFound = errors.New("chunk not found")

	// ErrSpecMismatch is returned when a store file was created with a
	// different metric or dimensionality than requested.
	ErrSpecMismatch = errors.New("vector store spec mismatch")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("vector store closed")

	// ErrInvalidChunk is returned for empty or oversized text and for
	// malformed embeddings.
	ErrInvalidChunk = errors.New("invalid chunk")
)

// StorageError describes a failed vector store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
