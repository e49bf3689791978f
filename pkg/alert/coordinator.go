package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-shesafe/internal/log"
)

// Appender persists accepted events. Implementations serialize appends.
type Appender interface {
	Append(ctx context.Context, ev Event) error
}

// Notifier hands an event to out-of-band notification. It must not block.
type Notifier interface {
	Notify(ev Event)
}

// SoundPlayer starts playback of a named sound. It must not block.
type SoundPlayer interface {
	Play(key string)
}

// Recorder receives coordination outcomes, typically for metrics.
type Recorder interface {
	AlertAccepted(kind Kind, sev Severity)
	AlertSuppressed(kind Kind)
	AudioArbitrated(sev Severity, accepted bool)
}

// Origin is where an alert comes from.
type Origin struct {
	Camera string
	Lat    float64
	Lon    float64
}

// Coordinator is the single emission point for alerts from all cameras.
type Coordinator struct {
	cooldowns *Cooldowns
	arbiter   *Arbiter
	policies  map[Kind]Policy

	ledger   Appender
	notifier Notifier
	player   SoundPlayer
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.RWMutex
	listeners []func(Event)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLedger sets where accepted events are appended.
func WithLedger(l Appender) Option {
	return func(c *Coordinator) { c.ledger = l }
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithSoundPlayer sets the audio channel player.
func WithSoundPlayer(p SoundPlayer) Option {
	return func(c *Coordinator) { c.player = p }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithPolicies replaces the per-kind policies.
func WithPolicies(p map[Kind]Policy) Option {
	return func(c *Coordinator) { c.policies = p }
}

// WithHoldWindow sets how long an accepted sound owns the audio channel.
func WithHoldWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.arbiter = NewArbiter(d) }
}

// NewCoordinator creates a coordinator with default policies and a 3s hold.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		cooldowns: NewCooldowns(),
		arbiter:   NewArbiter(DefaultHoldWindow),
		policies:  DefaultPolicies(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.Component(c.logger, "alerts")
	return c
}

// OnAccept registers fn to be called synchronously for every accepted event.
// fn must not block.
func (c *Coordinator) OnAccept(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// ShouldLog is the deduplication check on its own.
func (c *Coordinator) ShouldLog(camera string, kind Kind, cooldown time.Duration) bool {
	return c.cooldowns.ShouldLog(camera, kind, cooldown, c.now())
}

// PlayPrioritySound plays sound iff level wins the audio channel.
func (c *Coordinator) PlayPrioritySound(level Severity, sound string) bool {
	ok := c.arbiter.Acquire(level, c.now())
	if c.recorder != nil {
		c.recorder.AudioArbitrated(level, ok)
	}
	if ok && c.player != nil {
		c.player.Play(sound)
	}
	return ok
}

// Emit runs an alert of kind from origin through deduplication. When accepted
// it is appended to the ledger, handed to the notifier and arbitrated for
// audio playback. Emit never blocks on notification and never returns
// downstream failures to the caller.
func (c *Coordinator) Emit(ctx context.Context, origin Origin, kind Kind) (Event, bool) {
	policy, ok := c.policies[kind]
	if !ok {
		c.logger.Warn("no policy for alert kind", "kind", kind)
		return Event{}, false
	}

	now := c.now()
	if !c.cooldowns.ShouldLog(origin.Camera, kind, policy.Cooldown, now) {
		if c.recorder != nil {
			c.recorder.AlertSuppressed(kind)
		}
		return Event{}, false
	}

	ev := NewEvent(origin.Camera, kind, policy.Severity, origin.Lat, origin.Lon, now)

	if c.ledger != nil {
		if err := c.ledger.Append(ctx, ev); err != nil {
			c.logger.Error("ledger append failed", "camera", ev.Camera, "kind", ev.Kind, log.Err(err))
		}
	}
	if c.notifier != nil {
		c.notifier.Notify(ev)
	}
	c.PlayPrioritySound(policy.Severity, policy.Sound)

	if c.recorder != nil {
		c.recorder.AlertAccepted(kind, policy.Severity)
	}

	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}

	c.logger.Info("alert accepted",
		"camera", ev.Camera,
		"kind", ev.Kind,
		"severity", ev.Severity,
		"risk", ev.Risk)

	return ev, true
}
