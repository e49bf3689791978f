package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/audio"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/hotspot"
	"github.com/teslashibe/go-shesafe/pkg/ledger"
	"github.com/teslashibe/go-shesafe/pkg/metrics"
	"github.com/teslashibe/go-shesafe/pkg/notify"
	"github.com/teslashibe/go-shesafe/pkg/state"
	"github.com/teslashibe/go-shesafe/pkg/vision"
	"github.com/teslashibe/go-shesafe/pkg/web"
	"github.com/teslashibe/go-shesafe/pkg/worker"
)

// Perception is the frame acquisition and inference backend. The same
// pipeline is shared by every camera, so its collaborators must be safe for
// concurrent use.
type Perception struct {
	Open     camera.Opener
	Pipeline vision.Pipeline
}

// AudioOpener opens a capture source on a device.
type AudioOpener func(ctx context.Context, device string) (audio.Source, error)

// App owns every component and their lifecycle.
type App struct {
	cfg    Config
	logger *slog.Logger

	registry *camera.Registry
	store    *state.Store
	ledger   ledger.Ledger
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry

	coordinator *alert.Coordinator
	dispatcher  *notify.Dispatcher
	player      *audio.Player
	mqtt        *notify.MQTT
	redis       *notify.Redis

	aggregator *hotspot.Aggregator
	workers    *worker.Group
	detectors  map[string]*audio.AnomalyDetector
	openAudio  AudioOpener
	server     *web.Server
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the root logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithAudioOpener overrides how microphone sources are opened.
func WithAudioOpener(open AudioOpener) Option {
	return func(a *App) { a.openAudio = open }
}

// New validates cfg and builds every component. Nothing runs until Run.
func New(ctx context.Context, cfg Config, p Perception, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Open == nil {
		return nil, &ConfigError{Field: "Perception.Open", Message: "a camera opener is required"}
	}

	a := &App{
		cfg:       cfg,
		store:     state.NewStore(),
		promReg:   prometheus.NewRegistry(),
		detectors: make(map[string]*audio.AnomalyDetector),
		openAudio: func(ctx context.Context, device string) (audio.Source, error) {
			return audio.NewExecSource(ctx, device)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.Or(a.logger)

	if err := a.initRegistry(); err != nil {
		return nil, err
	}
	if cfg.Fresh {
		if err := a.clearArtifacts(); err != nil {
			return nil, err
		}
	}

	led, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.ledger = led

	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promReg)

	a.initAlerts(ctx)
	a.initWorkers(p)

	a.aggregator = hotspot.NewAggregator(a.ledger, cfg.Hotspot,
		hotspot.WithLogger(a.logger),
		hotspot.WithRecorder(a.metrics))

	a.server = web.NewServer(cfg.Web, web.Sources{
		Registry: a.registry,
		Store:    a.store,
		Alerts:   a.ledger,
		Hotspots: a.aggregator,
		Gatherer: a.promReg,
		Workers:  a.workers.States,
	}, web.WithLogger(a.logger))
	a.coordinator.OnAccept(a.server.PublishAlert)

	return a, nil
}

func (a *App) initRegistry() error {
	if a.cfg.CameraFile != "" {
		reg, err := camera.LoadFile(a.cfg.CameraFile)
		if err != nil {
			return err
		}
		a.registry = reg
	} else {
		reg, ok := camera.Preset(a.cfg.Preset)
		if !ok {
			return &ConfigError{Field: "Preset", Message: fmt.Sprintf("unknown camera preset %q", a.cfg.Preset)}
		}
		a.registry = reg
	}
	a.logger.Info("cameras loaded", "count", a.registry.Len())
	return nil
}

// clearArtifacts removes the ledger file and the hotspot artifacts.
func (a *App) clearArtifacts() error {
	var errs []error
	if a.cfg.Ledger.Backend != "postgres" && a.cfg.Ledger.Backend != "pgx" && a.cfg.Ledger.Path != "" {
		if err := os.Remove(a.cfg.Ledger.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := hotspot.RemoveArtifacts(a.cfg.Hotspot); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("fresh start: %w", err)
	}
	a.logger.Info("fresh start, previous alerts cleared")
	return nil
}

func (a *App) initAlerts(ctx context.Context) {
	notifiers := []notify.Notifier{notify.NewLog(a.logger)}

	if a.cfg.Gmail.ClientID != "" {
		g, err := notify.NewGmail(ctx, a.cfg.Gmail)
		if err != nil {
			a.logger.Warn("email alerts disabled", log.Err(err))
		} else {
			notifiers = append(notifiers, g)
		}
	}
	if a.cfg.MQTT.Broker != "" {
		m, err := notify.NewMQTT(ctx, a.cfg.MQTT, a.logger)
		if err != nil {
			a.logger.Warn("mqtt alerts disabled", log.Err(err))
		} else {
			a.mqtt = m
			notifiers = append(notifiers, m)
		}
	}
	if a.cfg.Redis.Addr != "" {
		r, err := notify.NewRedis(ctx, a.cfg.Redis)
		if err != nil {
			a.logger.Warn("redis alerts disabled", log.Err(err))
		} else {
			a.redis = r
			notifiers = append(notifiers, r)
		}
	}
	if a.cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(a.cfg.WebhookURL, nil, nil))
	}

	a.dispatcher = notify.NewDispatcher(a.cfg.Notify, notifiers,
		notify.WithLogger(a.logger),
		notify.WithRecorder(a.metrics))

	opts := []alert.Option{
		alert.WithLedger(a.ledger),
		alert.WithNotifier(a.dispatcher),
		alert.WithRecorder(a.metrics),
		alert.WithPolicies(a.cfg.Policies()),
		alert.WithHoldWindow(a.cfg.HoldWindow),
		alert.WithLogger(a.logger),
	}
	if a.cfg.SoundDir != "" {
		a.player = audio.NewPlayer(audio.DefaultSounds(a.cfg.SoundDir),
			audio.WithCommand(a.cfg.SoundCommand[0], a.cfg.SoundCommand[1:]...),
			audio.WithPlayerLogger(a.logger))
		opts = append(opts, alert.WithSoundPlayer(a.player))
	}
	a.coordinator = alert.NewCoordinator(opts...)
}

func (a *App) initWorkers(p Perception) {
	var ws []*worker.Worker
	for _, d := range a.registry.All() {
		opts := []worker.Option{
			worker.WithConfig(a.cfg.Worker),
			worker.WithRecorder(a.metrics),
			worker.WithLogger(a.logger),
		}
		if d.AudioDevice != "" {
			det := audio.NewAnomalyDetector(a.cfg.AudioThreshold, a.cfg.AudioRefractory)
			a.detectors[d.ID] = det
			opts = append(opts, worker.WithAudio(det))
		}
		ws = append(ws, worker.New(d, a.registry.Capture(), p.Open, p.Pipeline, a.coordinator, a.store, opts...))
	}
	a.workers = worker.NewGroup(ws...)
}

// Coordinator returns the alert coordinator.
func (a *App) Coordinator() *alert.Coordinator { return a.coordinator }

// Store returns the shared live state.
func (a *App) Store() *state.Store { return a.store }

// Server returns the API server.
func (a *App) Server() *web.Server { return a.server }

// Run starts every component and blocks until ctx is cancelled or the API
// server fails. Camera failures are logged and do not stop the others.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { _ = a.aggregator.Run(ctx) })

	for id, det := range a.detectors {
		det := det
		d, _ := a.registry.Get(id)
		run(func() { a.runAudio(ctx, d, det) })
	}

	run(func() {
		for _, err := range a.workers.Run(ctx) {
			a.logger.Error("camera lost", log.Err(err))
		}
	})

	a.logger.Info("monitoring started", "cameras", a.registry.Len(), "addr", a.cfg.Web.Addr)
	err := a.server.Run(ctx)
	if err != nil {
		a.logger.Error("api server failed", log.Err(err))
	}

	cancel()
	wg.Wait()
	return err
}

func (a *App) runAudio(ctx context.Context, d camera.Descriptor, det *audio.AnomalyDetector) {
	logger := a.logger.With("camera", d.ID, "device", d.AudioDevice)
	src, err := a.openAudio(ctx, d.AudioDevice)
	if err != nil {
		logger.Warn("audio capture unavailable", log.Err(err))
		return
	}
	defer src.Close()
	if err := det.Run(ctx, src, logger); err != nil {
		logger.Warn("audio capture stopped", log.Err(err))
	}
}

// Shutdown flushes notifications and releases resources. Call it after Run
// returns.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notifications: %w", err))
		}
	}
	if a.player != nil {
		a.player.Stop()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
