// Package inmemory provides an in-memory audit store for tests and
// ephemeral sessions.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
)

// Driver implements storage.Driver with a slice.
type Driver struct {
	// mu is a read write sync mutex guarding header and records
	mu sync.RWMutex

	header  *audit.Header
	records []storage.WireRecord
	closed  bool

	// AppendErr, when set, is returned by Append without storing anything.
	AppendErr error
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{}
}

// Header returns the stored header.
func (s *Driver) Header(_ context.Context) (*audit.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	if s.header == nil {
		return nil, nil
	}
	h := *s.header
	return &h, nil
}

// WriteHeader stores h.
func (s *Driver) WriteHeader(_ context.Context, h *audit.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if s.header != nil {
		return errors.New("header already written")
	}
	c := *h
	s.header = &c
	return nil
}

// Append stores r after every existing record.
func (s *Driver) Append(_ context.Context, r *audit.Record) error {
	if r == nil {
		return errors.New("cannot store nil record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if want := uint64(len(s.records)); r.Sequence != want {
		return storage.SequenceError{Got: r.Sequence, Want: want}
	}
	s.records = append(s.records, storage.ToWire(r))
	return nil
}

// Range returns records with from <= sequence < to.
func (s *Driver) Range(_ context.Context, from, to uint64) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	n := uint64(len(s.records))
	to = min(to, n)
	if from >= to {
		return []*audit.Record{}, nil
	}
	out := make([]*audit.Record, 0, to-from)
	for _, w := range s.records[from:to] {
		out = append(out, w.Record())
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Driver) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, storage.ErrClosed
	}
	return uint64(len(s.records)), nil
}

// Tamper rewrites the stored copy of record seq, bypassing the append-only
// contract. It exists so tests can corrupt a store.
func (s *Driver) Tamper(seq uint64, fn func(*storage.WireRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.records[seq])
}

// Truncate drops every record from seq on, bypassing the append-only
// contract. It exists so tests can corrupt a store.
func (s *Driver) Truncate(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:seq]
}

// Close marks the store closed.
func (s *Driver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ storage.Driver = (*Driver)(nil)
