package face

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockEmbedder returns a fixed embedding or error.
type MockEmbedder struct {
	mu    sync.Mutex
	vec   []float64
	err   error
	calls int
}

// NewMockEmbedder creates a mock that returns vec from every Embed call.
func NewMockEmbedder(vec []float64) *MockEmbedder {
	return &MockEmbedder{vec: vec}
}

// SetEmbedding changes the returned embedding.
func (m *MockEmbedder) SetEmbedding(vec []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vec = vec
}

// SetError makes Embed fail with err.
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Embed returns the configured embedding.
func (m *MockEmbedder) Embed(region *gocv.Mat) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

// Calls returns how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op.
func (m *MockEmbedder) Close() error {
	return nil
}
