// Package engine combines retrieval and greedy decoding into a single
// generate call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/decoder"
	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/retrieval"
)

// ErrNotInitialized is returned by a nil or closed engine.
var ErrNotInitialized = errors.New("engine not initialized")

// Generation is the outcome of one generate call.
type Generation struct {
	Response string
	Context  *retrieval.ContextWindow
	Decode   *decoder.Result
	Duration time.Duration
}

// Engine owns a model and serializes generation on it.
type Engine struct {
	mu        sync.Mutex
	model     model.Model
	retriever *retrieval.Retriever
	decoder   decoder.Greedy
	closed    bool
	logger    *zap.Logger
}

// New creates an engine. The engine takes ownership of m.
func New(m model.Model, r *retrieval.Retriever, d decoder.Greedy, logger *zap.Logger) *Engine {
	return &Engine{
		model:     m,
		retriever: r,
		decoder:   d,
		logger:    logger,
	}
}

// Generate retrieves context for prompt and decodes a response. Only one
// generation runs at a time; a started decode is not interrupted by ctx.
func (e *Engine) Generate(ctx context.Context, prompt string) (*Generation, error) {
	if e == nil {
		return nil, ErrNotInitialized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.model == nil {
		return nil, ErrNotInitialized
	}

	start := time.Now()

	window, err := e.retriever.Retrieve(ctx, prompt)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation not started: %w", err)
	}

	res, err := e.decoder.Run(e.model, window.Text, prompt)
	if err != nil {
		return nil, err
	}

	gen := &Generation{
		Response: res.Text,
		Context:  window,
		Decode:   res,
		Duration: time.Since(start),
	}

	e.logger.Debug("response generated",
		zap.Int("context_chunks", len(window.Chunks)),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", len(res.Tokens)),
		zap.String("stop_reason", string(res.Reason)),
		zap.Duration("duration", gen.Duration),
	)
	return gen, nil
}

// Tokenizer returns the model's tokenizer.
func (e *Engine) Tokenizer() model.Tokenizer {
	return e.model
}

// Close releases the model. Later calls to Generate fail with
// ErrNotInitialized.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.model == nil {
		return nil
	}
	return e.model.Close()
}
