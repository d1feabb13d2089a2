package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/embeddings"
)

// DefaultMaxTextBytes bounds a single chunk's text.
const DefaultMaxTextBytes = 8192

// Store is the nearest-neighbor index over embedded chunks. Queries share a
// read lock; inserts take it exclusively.
type Store struct {
	mu       sync.RWMutex
	driver   Driver
	embedder embeddings.Embedder
	spec     Spec
	maxText  int
	chunks   []Chunk
	closed   bool
	logger   *zap.Logger
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxTextBytes is the longest chunk text accepted by Insert.
	// Defaults to DefaultMaxTextBytes if zero.
	MaxTextBytes int
}

// NewStore loads every chunk from driver and returns a Store that embeds with
// embedder. The embedder's dimensionality must match the driver's spec.
func NewStore(ctx context.Context, driver Driver, embedder embeddings.Embedder, c StoreConfig, logger *zap.Logger) (*Store, error) {
	if driver == nil {
		return nil, storageErr("open", errors.New("driver is required"))
	}
	if embedder == nil {
		return nil, storageErr("open", errors.New("embedder is required"))
	}

	spec := driver.Spec()
	if embedder.Dimensions() != spec.Dimensions {
		return nil, storageErr("open", fmt.Errorf("%w: embedder produces %d dimensions, store has %d",
			ErrSpecMismatch, embedder.Dimensions(), spec.Dimensions))
	}

	chunks, err := driver.All(ctx)
	if err != nil {
		return nil, storageErr("load", err)
	}

	maxText := c.MaxTextBytes
	if maxText <= 0 {
		maxText = DefaultMaxTextBytes
	}

	logger.Debug("vector store opened",
		zap.String("metric", string(spec.Metric)),
		zap.Uint("dimensions", spec.Dimensions),
		zap.Int("chunks", len(chunks)),
	)

	return &Store{
		driver:   driver,
		embedder: embedder,
		spec:     spec,
		maxText:  maxText,
		chunks:   chunks,
		logger:   logger,
	}, nil
}

// Embedder returns the embedding model shared by inserts and retrieval.
func (s *Store) Embedder() embeddings.Embedder {
	return s.embedder
}

// Spec returns the store's fixed metric and dimensionality.
func (s *Store) Spec() Spec {
	return s.spec
}

// Insert embeds text and stores it. Inserting text that is already present
// returns the existing ID without writing.
func (s *Store) Insert(ctx context.Context, text, sourceRef string) (ChunkID, error) {
	if text == "" {
		return "", storageErr("insert", fmt.Errorf("%w: empty text", ErrInvalidChunk))
	}
	if len(text) > s.maxText {
		return "", storageErr("insert", fmt.Errorf("%w: text is %d bytes, limit is %d", ErrInvalidChunk, len(text), s.maxText))
	}

	id := NewChunkID(text)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return "", storageErr("insert", ErrClosed)
	}

	// Embedding happens outside the write lock so queries are not held up by
	// a slow embedder.
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", storageErr("insert", err)
	}
	if err := ValidateEmbedding(emb, s.spec.Dimensions); err != nil {
		return "", storageErr("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", storageErr("insert", ErrClosed)
	}

	chunk := &Chunk{
		ID:        id,
		Text:      text,
		Embedding: emb,
		SourceRef: sourceRef,
	}
	added, err := s.driver.Add(ctx, chunk)
	if err != nil {
		return "", storageErr("insert", err)
	}
	if !added {
		s.logger.Debug("chunk already stored", zap.String("chunk_id", string(id)))
		return id, nil
	}

	s.chunks = append(s.chunks, *chunk)
	s.logger.Debug("chunk inserted",
		zap.String("chunk_id", string(id)),
		zap.Uint64("seq", chunk.Seq),
		zap.String("source_ref", sourceRef),
	)
	return id, nil
}

// Query returns the k chunks closest to embedding. k is clamped to the store
// size and k <= 0 yields an empty result.
func (s *Store) Query(_ context.Context, embedding []float32, k int) ([]QueryResult, error) {
	if err := ValidateEmbedding(embedding, s.spec.Dimensions); err != nil {
		return nil, storageErr("query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storageErr("query", ErrClosed)
	}
	return Rank(s.spec.Metric, s.chunks, embedding, k), nil
}

// Get returns a stored chunk by ID.
func (s *Store) Get(ctx context.Context, id ChunkID) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storageErr("get", ErrClosed)
	}
	c, err := s.driver.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storageErr("get", err)
	}
	return c, nil
}

// Size returns the number of stored chunks.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Persist flushes the store to its backing file.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storageErr("persist", ErrClosed)
	}
	if err := s.driver.Persist(ctx); err != nil {
		return storageErr("persist", err)
	}
	return nil
}

// Close releases the driver. The embedder is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.chunks = nil
	if err := s.driver.Close(); err != nil {
		return storageErr("close", err)
	}
	return nil
}
