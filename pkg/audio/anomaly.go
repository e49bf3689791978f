package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
)

// Anomaly defaults.
const (
	DefaultThreshold  = 0.03
	DefaultRefractory = 1500 * time.Millisecond
)

// Volume is the L2 norm of the normalized samples divided by the number of
// samples.
func Volume(c Chunk) float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum) / float64(len(c.Samples))
}

// AnomalyDetector flags loud audio. Detected reports each anomaly at most
// once.
type AnomalyDetector struct {
	threshold  float64
	refractory time.Duration
	now        func() time.Time

	mu        sync.Mutex
	last      time.Time
	triggered atomic.Bool
}

// NewAnomalyDetector creates a detector. Zero values select the defaults.
func NewAnomalyDetector(threshold float64, refractory time.Duration) *AnomalyDetector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if refractory <= 0 {
		refractory = DefaultRefractory
	}
	return &AnomalyDetector{
		threshold:  threshold,
		refractory: refractory,
		now:        time.Now,
	}
}

// Observe feeds one chunk. A chunk louder than the threshold raises the flag
// unless the previous anomaly was less than the refractory period ago.
func (d *AnomalyDetector) Observe(c Chunk, now time.Time) {
	if Volume(c) <= d.threshold {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.last.IsZero() && now.Sub(d.last) <= d.refractory {
		return
	}
	d.last = now
	d.triggered.Store(true)
}

// Detected reports whether an anomaly occurred since the last call and
// clears the flag.
func (d *AnomalyDetector) Detected() bool {
	return d.triggered.CompareAndSwap(true, false)
}

// Run reads src until ctx is cancelled or src reports io.EOF.
func (d *AnomalyDetector) Run(ctx context.Context, src Source, logger *slog.Logger) error {
	logger = log.Component(logger, "audio")
	for {
		c, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logger.Warn("audio read failed", log.Err(err))
			return err
		}
		d.Observe(c, d.now())
	}
}
