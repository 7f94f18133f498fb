package notify

import (
	"context"
	"sync"

	"github.com/ayusman/doorcam/internal/event"
)

// Mock records notifications instead of sending them.
type Mock struct {
	mu         sync.Mutex
	Detections []event.Detection
	Startups   []StartupInfo
	Errors     []string
	Err        error
}

// NewMock creates an empty recorder.
func NewMock() *Mock {
	return &Mock{}
}

// SendDetection records ev and returns Err.
func (m *Mock) SendDetection(ctx context.Context, ev event.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Detections = append(m.Detections, ev)
	return m.Err
}

// SendStartup records info and returns Err.
func (m *Mock) SendStartup(ctx context.Context, info StartupInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Startups = append(m.Startups, info)
	return m.Err
}

// SendError records msg and returns Err.
func (m *Mock) SendError(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, msg)
	return m.Err
}

// SetErr makes every send fail with err.
func (m *Mock) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// DetectionCount returns how many detections were sent.
func (m *Mock) DetectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Detections)
}
