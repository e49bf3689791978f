package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
)

var (
	// ErrSourceUnavailable means the source could not be opened.
	ErrSourceUnavailable = errors.New("camera: source unavailable")

	// ErrNoFrame means no frame is ready yet. It is transient.
	ErrNoFrame = errors.New("camera: no frame")
)

// Frame is one captured image. JPEG may be empty when the backend only
// keeps the native image; the annotator encodes it in that case.
type Frame struct {
	JPEG     []byte
	Width    int
	Height   int
	Captured time.Time

	// Image is the backend-native decoded image, when the backend keeps one.
	// Perception collaborators from the same backend may use it to skip a
	// decode.
	Image any
}

// Close releases the native image, if any.
func (f *Frame) Close() {
	if c, ok := f.Image.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	f.Image = nil
}

// Source yields frames from one camera.
type Source interface {
	// Next returns the next frame, or ErrNoFrame if none is ready.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Opener opens a source for a descriptor.
type Opener func(ctx context.Context, d Descriptor, capture Capture) (Source, error)

// Retry controls how often opening is attempted.
type Retry struct {
	Attempts int
	Backoff  time.Duration // doubled after each failure
}

// DefaultRetry is 3 attempts starting at a 1 s backoff.
var DefaultRetry = Retry{Attempts: 3, Backoff: time.Second}

// OpenWithRetry calls open until it succeeds, attempts run out or ctx is
// done. The final error wraps ErrSourceUnavailable.
func OpenWithRetry(ctx context.Context, open Opener, d Descriptor, capture Capture, retry Retry, logger *slog.Logger) (Source, error) {
	logger = log.Or(logger)
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	backoff := retry.Backoff
	var lastErr error
	for attempt := 1; attempt <= retry.Attempts; attempt++ {
		src, err := open(ctx, d, capture)
		if err == nil {
			return src, nil
		}
		lastErr = err
		logger.Warn("open source failed",
			"camera", d.ID,
			"source", d.Source.String(),
			"attempt", attempt,
			"of", retry.Attempts,
			"error", err)

		if attempt == retry.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	if errors.Is(lastErr, ErrSourceUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, d.ID, lastErr)
}
