package alert

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory Appender for tests.
type MemoryLedger struct {
	// AppendFunc, if set, is called instead of storing the event.
	AppendFunc func(ctx context.Context, ev Event) error

	mu     sync.Mutex
	events []Event
}

// Append records ev.
func (m *MemoryLedger) Append(ctx context.Context, ev Event) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of everything appended.
func (m *MemoryLedger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// MockNotifier records notified events.
type MockNotifier struct {
	mu     sync.Mutex
	events []Event
}

// Notify records ev.
func (m *MockNotifier) Notify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of everything notified.
func (m *MockNotifier) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// MockPlayer records played sound keys.
type MockPlayer struct {
	mu    sync.Mutex
	plays []string
}

// Play records key.
func (m *MockPlayer) Play(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays = append(m.plays, key)
}

// Plays returns a copy of the played keys in order.
func (m *MockPlayer) Plays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.plays...)
}
