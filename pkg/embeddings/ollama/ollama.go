// Package ollama embeds text through a local Ollama server's /api/embed
// endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/glassbox/pkg/embeddings"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "nomic-embed-text"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultDimensions is the output width of nomic-embed-text.
	DefaultDimensions uint = 768

	// DefaultAttempts bounds how often a request is sent while the server
	// answers with a retryable status, e.g. while the model is loading.
	DefaultAttempts = 3

	defaultTimeout = 120 * time.Second
	retryBackoff   = 250 * time.Millisecond
	maxErrorBody   = 4 << 10
)

// Embedder calls Ollama's embedding API. Vectors of any width other than
// the configured dimensions are rejected so every row in a vector store
// stays comparable.
type Embedder struct {
	endpoint   string
	model      string
	keepAlive  string
	dimensions uint
	attempts   int
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the Ollama embedder.
type EmbedderConfig struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the embedding model. Defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions is the vector length the model is expected to return.
	Dimensions uint

	// KeepAlive is forwarded to Ollama to keep the model resident between
	// calls, e.g. "10m". Empty leaves the server default.
	KeepAlive string

	// Attempts is the maximum number of sends per request. Defaults to
	// DefaultAttempts.
	Attempts int

	// Timeout bounds a single HTTP round trip. Defaults to two minutes.
	Timeout time.Duration
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// statusError carries a non-200 reply so callers can decide on retries.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	switch e.code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// NewEmbedder validates cfg and builds an Embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama url %q", cfg.BaseURL)
	}

	e := &Embedder{
		endpoint:   base + "/api/embed",
		model:      cfg.Model,
		keepAlive:  cfg.KeepAlive,
		dimensions: cfg.Dimensions,
		attempts:   cfg.Attempts,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.dimensions == 0 {
		e.dimensions = DefaultDimensions
	}
	if e.attempts <= 0 {
		e.attempts = DefaultAttempts
	}
	if e.httpClient.Timeout <= 0 {
		e.httpClient.Timeout = defaultTimeout
	}
	return e, nil
}

// Dimensions returns the expected embedding width.
func (e *Embedder) Dimensions() uint {
	return e.dimensions
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in a single request. The result is index-aligned
// with texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts, KeepAlive: e.keepAlive})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrEmbedding, err)
	}

	var resp *embedResponse
	for attempt := 1; ; attempt++ {
		resp, err = e.send(ctx, body)
		if err == nil {
			break
		}
		var se *statusError
		if !errors.As(err, &se) || !se.retryable() || attempt >= e.attempts {
			return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", embeddings.ErrEmbedding, ctx.Err())
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: model %s returned %d embeddings for %d inputs",
			embeddings.ErrEmbedding, e.model, len(resp.Embeddings), len(texts))
	}
	for i, vec := range resp.Embeddings {
		if uint(len(vec)) != e.dimensions {
			return nil, fmt.Errorf("%w: model %s returned %d dimensions at input %d, expected %d",
				embeddings.ErrEmbedding, e.model, len(vec), i, e.dimensions)
		}
	}
	return resp.Embeddings, nil
}

func (e *Embedder) send(ctx context.Context, body []byte) (*embedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
