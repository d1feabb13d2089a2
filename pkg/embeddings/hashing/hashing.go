// Package hashing implements a local, dependency free Embedder using signed
// feature hashing over word unigrams and bigrams.
//
// The output is a pure function of the input text and the configured
// dimensionality: no vocabulary is learned and no state is kept between calls.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/papercomputeco/glassbox/pkg/embeddings"
)

// DefaultDimensions matches the vec0 column width used by the original
// desktop vector store.
const DefaultDimensions uint = 384

// bigramWeight scales bigram features relative to unigrams.
const bigramWeight = 0.5

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+|[+\-*/=<>^%]`)

// Embedder hashes tokens into a fixed-width, L2-normalized vector.
type Embedder struct {
	dimensions uint
}

// Config holds configuration for the hashing embedder.
type Config struct {
	// Dimensions is the output vector length. Defaults to DefaultDimensions.
	Dimensions uint
}

// NewEmbedder creates a hashing embedder.
func NewEmbedder(c Config) *Embedder {
	dims := c.Dimensions
	if dims == 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() uint {
	return e.dimensions
}

// Embed converts text into a vector embedding. Empty or token-free text maps
// to the zero vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.dimensions == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", embeddings.ErrEmbedding)
	}

	acc := make([]float64, e.dimensions)
	tokens := Tokenize(text)

	for i, tok := range tokens {
		e.accumulate(acc, tok, 1.0)
		if i > 0 {
			e.accumulate(acc, tokens[i-1]+"\x00"+tok, bigramWeight)
		}
	}

	// Accumulate the norm in index order so the result is reproducible.
	norm := 0.0
	for _, v := range acc {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out, nil
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}

	return out, nil
}

func (e *Embedder) accumulate(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := sum % uint64(e.dimensions)
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

// Tokenize lowercases text and splits it into word, number and operator tokens.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

var _ embeddings.Embedder = (*Embedder)(nil)
