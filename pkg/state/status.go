// Package state holds the live, concurrently written views of the running
// system that the read API consumes: heartbeats, latest frames and counters.
//
// Each store has its own lock and no operation holds two of them.
package state

import "time"

// Status is a camera's liveness derived from its last heartbeat.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDegraded Status = "DEGRADED"
	StatusInactive Status = "INACTIVE"
)

// Liveness thresholds.
const (
	ActiveWithin   = 2 * time.Second
	DegradedWithin = 5 * time.Second
)

// Resolve classifies a camera from its last heartbeat. ok=false means no
// heartbeat was ever recorded, which is INACTIVE rather than an error.
func Resolve(last time.Time, ok bool, now time.Time) Status {
	if !ok {
		return StatusInactive
	}
	age := now.Sub(last)
	switch {
	case age < ActiveWithin:
		return StatusActive
	case age < DegradedWithin:
		return StatusDegraded
	default:
		return StatusInactive
	}
}
