// Package vector provides the content-addressed chunk store used for retrieval
// along with the driver contract its backends implement.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// ChunkID is the hex encoded SHA-256 of a chunk's text.
type ChunkID string

// NewChunkID derives the content address for text.
func NewChunkID(text string) ChunkID {
	sum := sha256.Sum256([]byte(text))
	return ChunkID(hex.EncodeToString(sum[:]))
}

// Chunk is a unit of stored text with its embedding. Chunks are immutable
// once inserted.
type Chunk struct {
	// ID is the content address of Text.
	ID ChunkID

	// Text is the raw chunk content.
	Text string

	// Embedding is the vector representation of Text.
	Embedding []float32

	// SourceRef is an opaque reference to where the text came from
	// (a file path and chunk index during ingestion).
	SourceRef string

	// Seq is the insertion order assigned by the driver, starting at 0.
	// It is the tie-break key for equal distances.
	Seq uint64
}

// QueryResult is a ranked chunk with its distance to the query embedding.
type QueryResult struct {
	Chunk

	// Distance is the metric distance to the query. Lower is closer.
	Distance float64
}

// Spec fixes the shape of a store at creation time.
type Spec struct {
	Metric     Metric
	Dimensions uint
}

// Driver persists chunks for a Store. Drivers are not required to be safe
// for concurrent use; the Store serializes access.
type Driver interface {
	// Spec returns the metric and dimensionality the backing store was
	// created with.
	Spec() Spec

	// Add stores a chunk and assigns its Seq. When a chunk with the same ID
	// already exists nothing is written and false is returned.
	Add(ctx context.Context, chunk *Chunk) (bool, error)

	// All returns every stored chunk in insertion order.
	All(ctx context.Context) ([]Chunk, error)

	// Get retrieves a chunk by ID. It returns ErrNotFound when absent.
	Get(ctx context.Context, id ChunkID) (*Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Persist flushes the store to its backing file.
	Persist(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}
