// Package notify delivers accepted alerts to people and systems outside the
// process: email, an MQTT broker, a webhook or the log.
//
// Delivery is best effort. The Dispatcher runs a fixed pool of workers over
// a bounded queue; a full queue drops the alert, and a failed send is logged
// and counted but never retried.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
)

var (
	// ErrQueueFull is logged when an alert is dropped.
	ErrQueueFull = errors.New("notify: queue full")

	// ErrClosed is logged when an alert arrives after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// Notifier sends one alert over one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev alert.Event) error
}

// Recorder observes delivery outcomes.
type Recorder interface {
	NotificationSent(channel string)
	NotificationFailed(channel string)
	NotificationDropped()
}

// Subject returns the human-readable subject line for ev.
func Subject(ev alert.Event) string {
	return fmt.Sprintf("SHE SAFE ALERT: %s", strings.ReplaceAll(string(ev.Kind), "_", " "))
}

// Body returns the plain-text message body for ev.
func Body(ev alert.Event) string {
	var b strings.Builder
	b.WriteString("SHE SAFE SYSTEM ALERT\n\n")
	fmt.Fprintf(&b, "Alert type : %s\n", ev.Kind)
	fmt.Fprintf(&b, "Severity   : %s\n", ev.Severity)
	fmt.Fprintf(&b, "Time       : %s\n", ev.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Camera     : %s\n", ev.Camera)
	fmt.Fprintf(&b, "Location   : %.5f, %.5f\n", ev.Lat, ev.Lon)
	fmt.Fprintf(&b, "Map        : https://www.google.com/maps?q=%.5f,%.5f\n\n", ev.Lat, ev.Lon)
	b.WriteString("Immediate attention required.\n")
	return b.String()
}

// Config sizes the dispatcher.
type Config struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultConfig returns 2 workers over a 64-slot queue with a 15 s send
// timeout.
func DefaultConfig() Config {
	return Config{
		Workers:     2,
		QueueSize:   64,
		SendTimeout: 15 * time.Second,
	}
}

// Dispatcher fans accepted alerts out to every notifier without blocking the
// caller. It implements alert.Notifier.
type Dispatcher struct {
	notifiers []Notifier
	cfg       Config
	logger    *slog.Logger
	recorder  Recorder

	queue chan alert.Event

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRecorder sets the delivery observer.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg Config, notifiers []Notifier, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifiers: notifiers,
		cfg:       cfg,
		queue:     make(chan alert.Event, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.Component(d.logger, "notify")

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	names := make([]string, len(notifiers))
	for i, n := range notifiers {
		names[i] = n.Name()
	}
	d.logger.Info("dispatcher started", "workers", cfg.Workers, "queue", cfg.QueueSize, "channels", names)
	return d
}

// Notify enqueues ev and returns immediately. A full queue drops ev.
func (d *Dispatcher) Notify(ev alert.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.deadLetter(ev, ErrClosed)
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.deadLetter(ev, ErrQueueFull)
	}
}

func (d *Dispatcher) deadLetter(ev alert.Event, err error) {
	if d.recorder != nil {
		d.recorder.NotificationDropped()
	}
	d.logger.Error("notification dropped",
		"alert_id", ev.ID,
		"camera", ev.Camera,
		"kind", ev.Kind,
		log.Err(err))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.queue {
		for _, n := range d.notifiers {
			d.send(n, ev)
		}
	}
}

func (d *Dispatcher) send(n Notifier, ev alert.Event) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	if err := n.Send(ctx, ev); err != nil {
		if d.recorder != nil {
			d.recorder.NotificationFailed(n.Name())
		}
		d.logger.Warn("notification failed",
			"channel", n.Name(),
			"alert_id", ev.ID,
			"kind", ev.Kind,
			log.Err(err))
		return
	}
	if d.recorder != nil {
		d.recorder.NotificationSent(n.Name())
	}
	d.logger.Debug("notification sent",
		"channel", n.Name(),
		"alert_id", ev.ID,
		"latency", time.Since(start))
}

// Close stops accepting alerts, lets the workers drain the queue and waits
// for them. Sends still running when ctx expires are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
