// Package retrieval turns a prompt into a ranked, token-bounded context
// window drawn from the vector store.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/vector"
)

const (
	// DefaultTopN is the number of chunks requested from the store.
	DefaultTopN = 4

	// DefaultMaxContextTokens bounds the concatenated context.
	DefaultMaxContextTokens = 1024

	separator = "\n"
)

// ErrUnavailable is returned when no vector store is attached.
var ErrUnavailable = errors.New("retrieval unavailable: vector store not initialized")

// ContextWindow is the context selected for one query.
type ContextWindow struct {
	// Chunks are the kept results in rank order.
	Chunks []vector.QueryResult

	// Text is the chunk texts joined by newlines.
	Text string

	// Tokens is the token count of Text.
	Tokens int

	// Dropped counts ranked chunks that did not fit.
	Dropped int
}

// Config holds retrieval limits.
type Config struct {
	// TopN defaults to DefaultTopN if zero.
	TopN int

	// MaxContextTokens defaults to DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Retriever queries a store with the store's own embedder.
type Retriever struct {
	store     *vector.Store
	tokenizer model.Tokenizer
	topN      int
	maxTokens int
	logger    *zap.Logger
}

// New creates a Retriever. A nil store is accepted and makes Retrieve fail
// with ErrUnavailable.
func New(store *vector.Store, tokenizer model.Tokenizer, c Config, logger *zap.Logger) *Retriever {
	topN := c.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	maxTokens := c.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	return &Retriever{
		store:     store,
		tokenizer: tokenizer,
		topN:      topN,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Retrieve embeds prompt, ranks the top chunks and keeps the longest rank
// prefix whose joined text fits in the token budget. Chunks are never cut.
func (r *Retriever) Retrieve(ctx context.Context, prompt string) (*ContextWindow, error) {
	if r == nil || r.store == nil {
		return nil, ErrUnavailable
	}

	emb, err := r.store.Embedder().Embed(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embedding prompt: %w", err)
	}

	results, err := r.store.Query(ctx, emb, r.topN)
	if err != nil {
		if errors.Is(err, vector.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("querying store: %w", err)
	}

	window := &ContextWindow{Chunks: []vector.QueryResult{}}
	var b strings.Builder
	for i, res := range results {
		candidate := res.Text
		if b.Len() > 0 {
			candidate = b.String() + separator + res.Text
		}
		tokens, err := r.tokenizer.Tokenize(candidate)
		if err != nil {
			return nil, fmt.Errorf("tokenizing context: %w", err)
		}
		if len(tokens) > r.maxTokens {
			// Later chunks rank lower, so dropping here keeps the prefix.
			window.Dropped = len(results) - i
			break
		}
		b.Reset()
		b.WriteString(candidate)
		window.Chunks = append(window.Chunks, res)
		window.Tokens = len(tokens)
	}
	window.Text = b.String()

	r.logger.Debug("context retrieved",
		zap.Int("chunks", len(window.Chunks)),
		zap.Int("dropped", window.Dropped),
		zap.Int("tokens", window.Tokens),
	)
	return window, nil
}
