package audit

import "context"

// Store is the append-only persistence behind a Log.
type Store interface {
	// Header returns the stored header, or nil when none has been written.
	Header(ctx context.Context) (*Header, error)

	// WriteHeader stores the header of a new log.
	WriteHeader(ctx context.Context, h *Header) error

	// Append durably stores r after every existing record.
	Append(ctx context.Context, r *Record) error

	// Range returns the stored records with from <= sequence < to in order.
	// Rows that cannot be decoded are reported as *CorruptionError.
	Range(ctx context.Context, from, to uint64) ([]*Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (uint64, error)
}
