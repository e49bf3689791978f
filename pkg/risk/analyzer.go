// Package risk turns per-frame person positions into debounced risk events.
//
// An Analyzer belongs to exactly one camera worker and is not safe for
// concurrent use.
package risk

import (
	"math"
	"time"
)

// Event is the kind of risk situation detected.
type Event string

const (
	// None means no debounced condition fired this tick.
	None       Event = ""
	Isolated   Event = "ISOLATED"
	Surrounded Event = "SURROUNDED"
)

// Position is the centroid of a detected person in frame pixels.
type Position struct {
	X, Y float64
}

// Dist returns the Euclidean distance between two positions.
func (p Position) Dist(q Position) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Config holds the debounce windows and proximity threshold.
type Config struct {
	IsolationTime  time.Duration // condition must hold this long before ISOLATED
	SurroundTime   time.Duration // condition must hold this long before SURROUNDED
	DistThreshold  float64       // pixels; a male closer than this counts as near
	MinSurrounding int           // males required near one female
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		IsolationTime:  1 * time.Second,
		SurroundTime:   1 * time.Second,
		DistThreshold:  150,
		MinSurrounding: 3,
	}
}

// episode tracks one debounced condition.
type episode struct {
	start time.Time
	fired bool
}

func (e *episode) active() bool { return !e.start.IsZero() }

func (e *episode) reset() { *e = episode{} }

// observe advances the episode for a tick where the condition holds and
// reports whether it fires now. Each continuous episode fires once.
func (e *episode) observe(now time.Time, window time.Duration) bool {
	if !e.active() {
		e.start = now
	}
	if e.fired || now.Sub(e.start) < window {
		return false
	}
	e.fired = true
	return true
}

// Analyzer is the per-camera risk state machine.
type Analyzer struct {
	cfg       Config
	isolation episode
	surround  episode
}

// NewAnalyzer creates an analyzer with cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.MinSurrounding <= 0 {
		cfg.MinSurrounding = DefaultConfig().MinSurrounding
	}
	return &Analyzer{cfg: cfg}
}

// Analyze feeds one tick of positions observed at now. It returns at most
// one event: ISOLATED is checked before SURROUNDED, though both conditions
// can never hold in the same tick.
func (a *Analyzer) Analyze(females, males []Position, now time.Time) Event {
	var out Event

	if isIsolated(females, males) {
		if a.isolation.observe(now, a.cfg.IsolationTime) {
			out = Isolated
		}
	} else {
		a.isolation.reset()
	}

	if a.isSurrounded(females, males) {
		if a.surround.observe(now, a.cfg.SurroundTime) && out == None {
			out = Surrounded
		}
	} else {
		a.surround.reset()
	}

	return out
}

// IsolationStart returns when the current isolation episode began.
func (a *Analyzer) IsolationStart() (time.Time, bool) {
	return a.isolation.start, a.isolation.active()
}

// SurroundStart returns when the current surrounded episode began.
func (a *Analyzer) SurroundStart() (time.Time, bool) {
	return a.surround.start, a.surround.active()
}

func isIsolated(females, males []Position) bool {
	return len(females) == 1 && len(males) == 0
}

func (a *Analyzer) isSurrounded(females, males []Position) bool {
	if len(females) < 1 || len(males) < a.cfg.MinSurrounding {
		return false
	}
	for _, f := range females {
		near := 0
		for _, m := range males {
			if f.Dist(m) < a.cfg.DistThreshold {
				near++
			}
		}
		if near >= a.cfg.MinSurrounding {
			return true
		}
	}
	return false
}
