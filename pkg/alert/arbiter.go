package alert

import (
	"sync"
	"time"
)

// DefaultHoldWindow is how long an accepted level owns the audio channel.
const DefaultHoldWindow = 3 * time.Second

// Arbiter decides which severity may use the single audio channel.
// The holder is an expiring token: every check first drops an expired
// holder, then compares priority.
type Arbiter struct {
	hold time.Duration

	mu        sync.Mutex
	level     Severity
	expiresAt time.Time
}

// NewArbiter creates an arbiter whose holders release after hold.
func NewArbiter(hold time.Duration) *Arbiter {
	if hold <= 0 {
		hold = DefaultHoldWindow
	}
	return &Arbiter{hold: hold}
}

// Acquire reports whether level may play now. On success level becomes the
// holder until now+hold. HIGH always wins; lower levels need an empty
// channel or a strictly lower holder. Rejections are not errors.
func (a *Arbiter) Acquire(level Severity, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.level != "" && !now.Before(a.expiresAt) {
		a.level = ""
	}

	if a.level != "" && level != SeverityHigh && level.Priority() <= a.level.Priority() {
		return false
	}

	a.level = level
	a.expiresAt = now.Add(a.hold)
	return true
}

// Holder returns the current holder, or "" if the channel is free at now.
func (a *Arbiter) Holder(now time.Time) Severity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.level == "" || !now.Before(a.expiresAt) {
		return ""
	}
	return a.level
}
