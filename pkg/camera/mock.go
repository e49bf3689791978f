package camera

import (
	"context"
	"sync"
)

// MockSource is a Source driven by a function, for tests.
type MockSource struct {
	NextFunc func(ctx context.Context) (Frame, error)

	mu     sync.Mutex
	calls  int
	closed bool
}

func (m *MockSource) Next(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.NextFunc != nil {
		return m.NextFunc(ctx)
	}
	return Frame{}, ErrNoFrame
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns how many times Next was called.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
