package testutils

import (
	"context"
	"fmt"
	"sync"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// Dims is reported by Dimensions and sizes the default embedding.
	Dims uint

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	mu     sync.Mutex
	Calls  []string
	Closed bool
}

func NewMockEmbedder(dims uint) *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dims:       dims,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	emb := make([]float32, m.Dims)
	if len(emb) > 0 {
		emb[0] = 1
	}
	return emb, nil
}

func (m *MockEmbedder) Dimensions() uint {
	return m.Dims
}

func (m *MockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
