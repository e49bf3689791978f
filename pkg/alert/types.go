// Package alert defines alert events and the coordination that gates them:
// per-(camera, kind) cooldown deduplication and severity-based arbitration
// of the shared audio channel.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an alert is about.
type Kind string

const (
	KindWomanIsolated   Kind = "WOMAN_ISOLATED"
	KindWomanSurrounded Kind = "WOMAN_SURROUNDED"
	KindTuckThumb       Kind = "TUCK_THUMB"
	KindTrapThumb       Kind = "TRAP_THUMB"
	KindHighRiskAudio   Kind = "HIGH_RISK_AUDIO"
)

// Kinds lists every known alert kind.
var Kinds = []Kind{
	KindWomanIsolated,
	KindWomanSurrounded,
	KindTuckThumb,
	KindTrapThumb,
	KindHighRiskAudio,
}

// weights is the single risk weight table shared by the live pipeline and
// hotspot aggregation.
var weights = map[Kind]float64{
	KindWomanIsolated:   1,
	KindWomanSurrounded: 3,
	KindTuckThumb:       5,
	KindTrapThumb:       5,
	KindHighRiskAudio:   5,
}

// Weight returns the risk weight of k. Unknown kinds weigh 0.
func (k Kind) Weight() float64 {
	return weights[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := weights[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Priority orders severities: HIGH=3 > MEDIUM=2 > LOW=1. Unknown is 0.
func (s Severity) Priority() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Priority() == 0 {
		return "", fmt.Errorf("alert: unknown severity %q", s)
	}
	return sev, nil
}

// Sound keys understood by the alert sound player.
const (
	SoundIsolated   = "isolated"
	SoundSurrounded = "surrounded"
	SoundSOS        = "sos"
	SoundHighRisk   = "high_risk"
)

// Policy is the fixed handling for one alert kind.
type Policy struct {
	Severity Severity
	Cooldown time.Duration
	Sound    string
}

// DefaultPolicies returns the per-kind severity, cooldown and sound.
func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindWomanIsolated:   {Severity: SeverityLow, Cooldown: 8 * time.Second, Sound: SoundIsolated},
		KindWomanSurrounded: {Severity: SeverityMedium, Cooldown: 8 * time.Second, Sound: SoundSurrounded},
		KindTuckThumb:       {Severity: SeverityHigh, Cooldown: 10 * time.Second, Sound: SoundSOS},
		KindTrapThumb:       {Severity: SeverityHigh, Cooldown: 10 * time.Second, Sound: SoundSOS},
		KindHighRiskAudio:   {Severity: SeverityHigh, Cooldown: 10 * time.Second, Sound: SoundHighRisk},
	}
}

// Event is an accepted alert. It is immutable once created.
type Event struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera_id"`
	Kind      Kind      `json:"alert_type"`
	Severity  Severity  `json:"severity"`
	Risk      float64   `json:"risk"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event for kind at the given place and time, with the
// kind's weight as its risk.
func NewEvent(camera string, kind Kind, sev Severity, lat, lon float64, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Camera:    camera,
		Kind:      kind,
		Severity:  sev,
		Risk:      kind.Weight(),
		Lat:       lat,
		Lon:       lon,
		Timestamp: at,
	}
}
