package hotspot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

// DefaultPeriod is the aggregation interval.
const DefaultPeriod = 30 * time.Second

// Reader is the read side of the alert ledger.
type Reader interface {
	All(ctx context.Context) ([]alert.Event, error)
}

// Recorder observes aggregation cycles.
type Recorder interface {
	HotspotCycle(buckets int, err error)
}

// Config controls where artifacts are written. Empty paths are skipped.
type Config struct {
	Period       time.Duration
	SnapshotPath string
	PriorityPath string
	MapPath      string
}

// DefaultConfig returns the default artifact layout.
func DefaultConfig() Config {
	return Config{
		Period:       DefaultPeriod,
		SnapshotPath: "hotspots.csv",
		PriorityPath: "camera_priority.csv",
		MapPath:      "hotspot_map.html",
	}
}

// Aggregator periodically recomputes the hotspot snapshot. It is the only
// writer of the snapshot; any number of goroutines may read it.
type Aggregator struct {
	src      Reader
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	snap    atomic.Pointer[Snapshot]
	mapHTML atomic.Pointer[[]byte]
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithRecorder sets a cycle observer.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator reading from src. Until the first
// cycle completes it publishes an empty snapshot.
func NewAggregator(src Reader, cfg Config, opts ...Option) *Aggregator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	a := &Aggregator{
		src: src,
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.Component(a.logger, "hotspot")

	a.publish(EmptySnapshot(a.now()))
	return a
}

// Snapshot returns the latest published snapshot. Callers must not modify it.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snap.Load()
}

// MapHTML returns the latest rendered map.
func (a *Aggregator) MapHTML() []byte {
	if p := a.mapHTML.Load(); p != nil {
		return *p
	}
	return nil
}

// Run computes a snapshot immediately and then once per period until ctx
// is cancelled. A failed cycle keeps the previous snapshot.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("aggregator started", "period", a.cfg.Period)
	a.cycleLogged(ctx)

	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopped")
			return nil
		case <-ticker.C:
			a.cycleLogged(ctx)
		}
	}
}

func (a *Aggregator) cycleLogged(ctx context.Context) {
	if _, err := a.Cycle(ctx); err != nil && ctx.Err() == nil {
		a.logger.Warn("hotspot cycle failed", log.Err(err))
	}
}

// Cycle runs one aggregation: read the ledger, compute, publish and persist.
func (a *Aggregator) Cycle(ctx context.Context) (*Snapshot, error) {
	events, err := a.src.All(ctx)
	if err != nil {
		a.record(0, err)
		return nil, err
	}

	snap := Aggregate(events, a.now())
	a.publish(snap)

	err = a.persist(snap)
	a.record(len(snap.Buckets), err)

	a.logger.Debug("hotspot cycle",
		"alerts", snap.Alerts,
		"buckets", len(snap.Buckets),
		"cameras", len(snap.Cameras))
	return snap, err
}

func (a *Aggregator) publish(snap *Snapshot) {
	var buf bytes.Buffer
	if err := RenderMap(&buf, snap); err != nil {
		a.logger.Warn("render map failed", log.Err(err))
	} else {
		html := buf.Bytes()
		a.mapHTML.Store(&html)
	}
	a.snap.Store(snap)
}

func (a *Aggregator) persist(snap *Snapshot) error {
	var errs []error
	write := func(path string, fn func(io.Writer, *Snapshot) error) {
		if path == "" {
			return
		}
		if err := writeAtomic(path, func(w io.Writer) error { return fn(w, snap) }); err != nil {
			errs = append(errs, err)
		}
	}
	write(a.cfg.SnapshotPath, WriteBuckets)
	write(a.cfg.PriorityPath, WritePriority)
	write(a.cfg.MapPath, RenderMap)
	return errors.Join(errs...)
}

func (a *Aggregator) record(buckets int, err error) {
	if a.recorder != nil {
		a.recorder.HotspotCycle(buckets, err)
	}
}

// RemoveArtifacts deletes the persisted artifacts. Missing files are ignored.
func RemoveArtifacts(cfg Config) error {
	var errs []error
	for _, p := range []string{cfg.SnapshotPath, cfg.PriorityPath, cfg.MapPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
