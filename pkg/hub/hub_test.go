package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type written struct {
	typ  int
	data []byte
}

// mockConn blocks reads until closed and records writes.
type mockConn struct {
	mu      sync.Mutex
	writes  []written
	closed  chan struct{}
	closeMu sync.Once
}

func newMockConn() *mockConn { return &mockConn{closed: make(chan struct{})} }

func (m *mockConn) ReadMessage() (int, []byte, error) {
	<-m.closed
	return 0, nil, errors.New("closed")
}

func (m *mockConn) WriteMessage(typ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, written{typ, data})
	return nil
}

func (m *mockConn) SetReadLimit(int64) {}

func (m *mockConn) SetReadDeadline(time.Time) error { return nil }

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.closeMu.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) Writes() []written {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]written(nil), m.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	h.OnConnect(func() (Message, bool) {
		return NewJSONMessage([]byte(`{"hello":true}`)), true
	})
	go h.Run(ctx)

	conn := newMockConn()
	c := NewClient(h, conn)
	go c.Run()

	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	h.Broadcast(NewBinaryMessage([]byte{0xff, 0xd8}))

	waitFor(t, func() bool { return len(conn.Writes()) >= 3 })
	w := conn.Writes()
	tests := []struct {
		typ  int
		data string
	}{
		{websocket.TextMessage, `{"hello":true}`},
		{websocket.TextMessage, `{"n":1}`},
		{websocket.BinaryMessage, "\xff\xd8"},
	}
	for i, tc := range tests {
		if w[i].typ != tc.typ || string(w[i].data) != tc.data {
			t.Errorf("write %d = %d %q, want %d %q", i, w[i].typ, w[i].data, tc.typ, tc.data)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	conn := newMockConn()
	c := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	<-done
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)

	conn := newMockConn()
	c := NewClient(h, conn)
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop with the hub")
	}
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// Joining a stopped hub must not block.
	late := NewClient(h, newMockConn())
	if _, ok := <-late.send; ok {
		t.Error("late client send channel open")
	}
}
