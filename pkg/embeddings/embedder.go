// Package embeddings defines the text embedding contract shared by the vector
// store and the retrieval layer.
//
// A single Embedder instance must serve both inserts and queries: distances
// are only comparable when the same function produced both sides.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when embedding generation fails.
var ErrEmbedding = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the fixed length of every vector Embed returns.
	Dimensions() uint

	// Close releases any resources held by the embedder.
	Close() error
}
