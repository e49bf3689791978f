// Package worker runs one long-lived monitoring loop per camera.
//
// A Worker owns its source, its risk analyzer and its last observed gesture.
// Everything it shares with other cameras goes through state.Store and the
// alert coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/risk"
	"github.com/teslashibe/go-shesafe/pkg/state"
	"github.com/teslashibe/go-shesafe/pkg/vision"
)

// State is the lifecycle of a worker.
type State string

const (
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateFailed   State = "FAILED"
	StateStopped  State = "STOPPED"
)

// States lists every worker state.
var States = []State{StateStarting, StateRunning, StateFailed, StateStopped}

// Emitter is the alert emission point shared by all workers.
type Emitter interface {
	Emit(ctx context.Context, origin alert.Origin, kind alert.Kind) (alert.Event, bool)
}

// AnomalySignal reports an audio anomaly at most once per occurrence.
type AnomalySignal interface {
	Detected() bool
}

// Recorder receives per-camera loop measurements.
type Recorder interface {
	FrameProcessed(camera string, men, women int)
	SourceReconnect(camera string)
	WorkerState(camera, state string, all []string)
}

// Config holds the loop tunables.
type Config struct {
	Risk        risk.Config
	MinCrop     int           // pixels; smaller person boxes are not classified
	MaxMisses   int           // consecutive empty reads before reopening the source
	IdleBackoff time.Duration // sleep after an empty read
	Retry       camera.Retry
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		Risk:        risk.DefaultConfig(),
		MinCrop:     80,
		MaxMisses:   100,
		IdleBackoff: 10 * time.Millisecond,
		Retry:       camera.DefaultRetry,
	}
}

// Worker monitors one camera.
type Worker struct {
	desc     camera.Descriptor
	capture  camera.Capture
	open     camera.Opener
	pipeline vision.Pipeline
	alerts   Emitter
	store    *state.Store
	audio    AnomalySignal
	recorder Recorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger

	analyzer    *risk.Analyzer
	lastGesture vision.Gesture

	mu    sync.RWMutex
	state State
	err   error
}

// Option configures a Worker.
type Option func(*Worker)

// WithConfig replaces the loop settings.
func WithConfig(cfg Config) Option {
	return func(w *Worker) { w.cfg = cfg }
}

// WithAudio attaches an audio anomaly signal.
func WithAudio(s AnomalySignal) Option {
	return func(w *Worker) { w.audio = s }
}

// WithRecorder sets the measurement recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker for desc. open is called on Run.
func New(desc camera.Descriptor, capture camera.Capture, open camera.Opener, pipeline vision.Pipeline, alerts Emitter, store *state.Store, opts ...Option) *Worker {
	w := &Worker{
		desc:     desc,
		capture:  capture,
		open:     open,
		pipeline: pipeline,
		alerts:   alerts,
		store:    store,
		cfg:      DefaultConfig(),
		now:      time.Now,
		state:    StateStarting,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = log.Component(w.logger, "worker").With("camera", desc.ID)
	w.analyzer = risk.NewAnalyzer(w.cfg.Risk)
	return w
}

// ID returns the camera id.
func (w *Worker) ID() string { return w.desc.ID }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Err returns the failure that moved the worker to FAILED.
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

func (w *Worker) setState(s State, err error) {
	w.mu.Lock()
	w.state = s
	w.err = err
	w.mu.Unlock()

	if w.recorder != nil {
		all := make([]string, len(States))
		for i, st := range States {
			all[i] = string(st)
		}
		w.recorder.WorkerState(w.desc.ID, string(s), all)
	}
}

// Run opens the source and processes frames until ctx is done or the source
// cannot be (re)opened. It returns nil on cancellation and an error wrapping
// camera.ErrSourceUnavailable when the camera is given up on.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateStarting, nil)

	src, err := w.openSource(ctx)
	if err != nil {
		return w.exit(ctx, err)
	}
	defer func() { _ = src.Close() }()

	w.setState(StateRunning, nil)
	w.logger.Info("camera worker running",
		"location", w.desc.Location,
		"source", w.desc.Source.String())

	misses := 0
	for {
		if ctx.Err() != nil {
			return w.exit(ctx, nil)
		}

		frame, err := src.Next(ctx)
		if err == nil {
			misses = 0
			w.process(ctx, &frame)
			frame.Close()
			continue
		}

		if ctx.Err() != nil {
			return w.exit(ctx, nil)
		}
		if !errors.Is(err, camera.ErrNoFrame) {
			w.logger.Debug("frame read failed", "error", err)
		}

		misses++
		if w.cfg.MaxMisses > 0 && misses >= w.cfg.MaxMisses {
			w.logger.Warn("no frames, reopening source", "misses", misses)
			if w.recorder != nil {
				w.recorder.SourceReconnect(w.desc.ID)
			}
			_ = src.Close()
			src, err = w.openSource(ctx)
			if err != nil {
				src = nopSource{}
				return w.exit(ctx, err)
			}
			misses = 0
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.IdleBackoff):
		}
	}
}

func (w *Worker) openSource(ctx context.Context) (camera.Source, error) {
	return camera.OpenWithRetry(ctx, w.open, w.desc, w.capture, w.cfg.Retry, w.logger)
}

// exit records the terminal state. Cancellation always wins over err.
func (w *Worker) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		w.setState(StateStopped, nil)
		w.logger.Info("camera worker stopped")
		return nil
	}
	w.setState(StateFailed, err)
	w.logger.Error("camera worker failed, camera is unmonitored", log.Err(err))
	return fmt.Errorf("worker %s: %w", w.desc.ID, err)
}

// process runs one tick on a captured frame.
func (w *Worker) process(ctx context.Context, frame *camera.Frame) {
	now := w.now()
	w.store.Heartbeats.Beat(w.desc.ID, now)

	persons, females, males := w.perceive(frame)

	origin := alert.Origin{Camera: w.desc.ID, Lat: w.desc.Lat, Lon: w.desc.Lon}
	switch w.analyzer.Analyze(females, males, now) {
	case risk.Isolated:
		w.alerts.Emit(ctx, origin, alert.KindWomanIsolated)
	case risk.Surrounded:
		w.alerts.Emit(ctx, origin, alert.KindWomanSurrounded)
	}

	// A failed detection says nothing about the hand, so the last label
	// stands and a held gesture is not re-triggered.
	gesture, ok := w.detectGesture(frame)
	if ok {
		if gesture != w.lastGesture {
			if kind, isAlert := gesture.AlertKind(); isAlert {
				w.alerts.Emit(ctx, origin, kind)
			}
		}
		w.lastGesture = gesture
	}

	if w.audio != nil && w.audio.Detected() {
		w.alerts.Emit(ctx, origin, alert.KindHighRiskAudio)
	}

	w.publish(frame, persons, gesture)

	w.store.Stats.Set(w.desc.ID, len(females)+len(males), len(females), now)
	if w.recorder != nil {
		w.recorder.FrameProcessed(w.desc.ID, len(males), len(females))
	}
}

// perceive detects and classifies people. Boxes below the minimum crop and
// Unknown verdicts are left out of the positions.
func (w *Worker) perceive(frame *camera.Frame) (persons []vision.Person, females, males []risk.Position) {
	if w.pipeline.Persons == nil {
		return nil, nil, nil
	}
	dets, err := w.pipeline.Persons.Detect(frame)
	if err != nil {
		w.logger.Warn("person detection failed", "error", err)
		return nil, nil, nil
	}

	for _, d := range dets {
		if d.Box.Dx() < w.cfg.MinCrop || d.Box.Dy() < w.cfg.MinCrop {
			continue
		}
		g := vision.Unknown
		if w.pipeline.Gender != nil {
			g, err = w.pipeline.Gender.Classify(frame, d.Box)
			if err != nil {
				w.logger.Debug("gender classification failed", "error", err)
				continue
			}
		}
		persons = append(persons, vision.Person{Detection: d, Gender: g})

		c := d.Center()
		pos := risk.Position{X: float64(c.X), Y: float64(c.Y)}
		switch g {
		case vision.Female:
			females = append(females, pos)
		case vision.Male:
			males = append(males, pos)
		}
	}
	return persons, females, males
}

// detectGesture reports ok=false when the detector failed.
func (w *Worker) detectGesture(frame *camera.Frame) (vision.Gesture, bool) {
	if w.pipeline.Gesture == nil {
		return vision.GestureNone, true
	}
	g, err := w.pipeline.Gesture.Detect(frame)
	if err != nil {
		w.logger.Debug("gesture detection failed", "error", err)
		return vision.GestureNone, false
	}
	return g, true
}

func (w *Worker) publish(frame *camera.Frame, persons []vision.Person, gesture vision.Gesture) {
	jpeg := frame.JPEG
	if w.pipeline.Annotator != nil {
		out, err := w.pipeline.Annotator.Annotate(frame, persons, gesture)
		if err != nil {
			w.logger.Debug("annotate failed", "error", err)
		} else {
			jpeg = out
		}
	}
	if len(jpeg) == 0 {
		return
	}
	w.store.Frames.Put(w.desc.ID, state.Frame{
		JPEG:     jpeg,
		Width:    frame.Width,
		Height:   frame.Height,
		Captured: frame.Captured,
	})
}

type nopSource struct{}

func (nopSource) Next(context.Context) (camera.Frame, error) {
	return camera.Frame{}, camera.ErrNoFrame
}

func (nopSource) Close() error { return nil }
