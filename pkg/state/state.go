package state

import (
	"sync"
	"time"
)

// Heartbeats maps camera id to the time its last frame was processed.
// Each worker writes only its own key.
type Heartbeats struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewHeartbeats creates an empty heartbeat map.
func NewHeartbeats() *Heartbeats {
	return &Heartbeats{last: make(map[string]time.Time)}
}

// Beat records now for camera.
func (h *Heartbeats) Beat(camera string, now time.Time) {
	h.mu.Lock()
	h.last[camera] = now
	h.mu.Unlock()
}

// Last returns the last heartbeat for camera.
func (h *Heartbeats) Last(camera string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.last[camera]
	return t, ok
}

// Status resolves camera's liveness at now.
func (h *Heartbeats) Status(camera string, now time.Time) Status {
	last, ok := h.Last(camera)
	return Resolve(last, ok, now)
}

// Frame is the most recently processed, JPEG-encoded frame of a camera.
type Frame struct {
	JPEG     []byte
	Width    int
	Height   int
	Captured time.Time
}

// Frames holds the latest frame per camera for live streaming.
type Frames struct {
	mu     sync.RWMutex
	latest map[string]Frame
}

// NewFrames creates an empty frame store.
func NewFrames() *Frames {
	return &Frames{latest: make(map[string]Frame)}
}

// Put replaces camera's latest frame. The caller must not modify f.JPEG
// afterwards.
func (f *Frames) Put(camera string, frame Frame) {
	f.mu.Lock()
	f.latest[camera] = frame
	f.mu.Unlock()
}

// Latest returns camera's latest frame.
func (f *Frames) Latest(camera string) (Frame, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fr, ok := f.latest[camera]
	return fr, ok
}

// Counts is a snapshot of the aggregate counters.
type Counts struct {
	Persons int `json:"persons"`
	Women   int `json:"women"`
}

// Stats holds process-wide person counters. Every camera overwrites them
// each frame, so the value is the last writer's view.
type Stats struct {
	mu     sync.RWMutex
	counts Counts
	camera string
	at     time.Time
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// Set overwrites the counters with camera's current frame.
func (s *Stats) Set(camera string, persons, women int, now time.Time) {
	s.mu.Lock()
	s.counts = Counts{Persons: persons, Women: women}
	s.camera = camera
	s.at = now
	s.mu.Unlock()
}

// Get returns the current counters.
func (s *Stats) Get() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

// Source returns which camera last wrote the counters and when.
func (s *Stats) Source() (string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera, s.at
}

// Store bundles the shared views handed to workers and the API.
type Store struct {
	Heartbeats *Heartbeats
	Frames     *Frames
	Stats      *Stats
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		Heartbeats: NewHeartbeats(),
		Frames:     NewFrames(),
		Stats:      NewStats(),
	}
}
