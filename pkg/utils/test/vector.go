package testutils

import (
	"context"
	"errors"

	"github.com/papercomputeco/glassbox/pkg/vector"
)

// ErrMockDriver is returned by MockVectorDriver when a failure is injected.
var ErrMockDriver = errors.New("mock vector driver failure")

// MockVectorDriver is a test vector driver
type MockVectorDriver struct {
	VSpec  vector.Spec
	Chunks []vector.Chunk

	FailAdd     bool
	FailAll     bool
	FailPersist bool

	Persists int
	Closed   bool
}

func NewMockVectorDriver(dims uint) *MockVectorDriver {
	return &MockVectorDriver{
		VSpec:  vector.Spec{Metric: vector.MetricL2, Dimensions: dims},
		Chunks: make([]vector.Chunk, 0),
	}
}

func (m *MockVectorDriver) Spec() vector.Spec {
	return m.VSpec
}

func (m *MockVectorDriver) Add(_ context.Context, chunk *vector.Chunk) (bool, error) {
	if m.FailAdd {
		return false, ErrMockDriver
	}
	for _, c := range m.Chunks {
		if c.ID == chunk.ID {
			return false, nil
		}
	}
	chunk.Seq = uint64(len(m.Chunks))
	m.Chunks = append(m.Chunks, *chunk)
	return true, nil
}

func (m *MockVectorDriver) All(_ context.Context) ([]vector.Chunk, error) {
	if m.FailAll {
		return nil, ErrMockDriver
	}
	return append([]vector.Chunk(nil), m.Chunks...), nil
}

func (m *MockVectorDriver) Get(_ context.Context, id vector.ChunkID) (*vector.Chunk, error) {
	for _, c := range m.Chunks {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, vector.ErrNotFound
}

func (m *MockVectorDriver) Count(_ context.Context) (int, error) {
	return len(m.Chunks), nil
}

func (m *MockVectorDriver) Persist(_ context.Context) error {
	if m.FailPersist {
		return ErrMockDriver
	}
	m.Persists++
	return nil
}

func (m *MockVectorDriver) Close() error {
	m.Closed = true
	return nil
}
