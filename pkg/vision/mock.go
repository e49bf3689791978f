package vision

import (
	"image"
	"sync"

	"github.com/teslashibe/go-shesafe/pkg/camera"
)

// MockDetector implements PersonDetector for testing.
type MockDetector struct {
	DetectFunc func(frame *camera.Frame) ([]Detection, error)
}

func (m *MockDetector) Detect(frame *camera.Frame) ([]Detection, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return nil, nil
}

// MockClassifier implements GenderClassifier for testing. Without
// ClassifyFunc it looks the box up in Genders and falls back to Unknown.
type MockClassifier struct {
	ClassifyFunc func(frame *camera.Frame, box image.Rectangle) (Gender, error)
	Genders      map[image.Rectangle]Gender
}

func (m *MockClassifier) Classify(frame *camera.Frame, box image.Rectangle) (Gender, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(frame, box)
	}
	if g, ok := m.Genders[box]; ok {
		return g, nil
	}
	return Unknown, nil
}

// MockGesture implements GestureDetector for testing.
type MockGesture struct {
	DetectFunc func(frame *camera.Frame) (Gesture, error)
}

func (m *MockGesture) Detect(frame *camera.Frame) (Gesture, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(frame)
	}
	return GestureNone, nil
}

// MockAnnotator implements Annotator for testing. It returns the frame's
// JPEG unchanged and records what it was asked to draw.
type MockAnnotator struct {
	mu    sync.Mutex
	calls []AnnotateCall
}

// AnnotateCall records one Annotate invocation.
type AnnotateCall struct {
	Persons []Person
	Gesture Gesture
}

func (m *MockAnnotator) Annotate(frame *camera.Frame, persons []Person, gesture Gesture) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, AnnotateCall{Persons: persons, Gesture: gesture})
	m.mu.Unlock()
	return frame.JPEG, nil
}

// Calls returns recorded invocations.
func (m *MockAnnotator) Calls() []AnnotateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AnnotateCall(nil), m.calls...)
}
