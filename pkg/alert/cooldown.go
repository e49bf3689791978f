package alert

import (
	"sync"
	"time"
)

// CooldownKey identifies a deduplication slot.
type CooldownKey struct {
	Camera string
	Kind   Kind
}

// Cooldowns remembers when each (camera, kind) was last accepted.
// Entries are never evicted; kind cardinality is small and fixed.
type Cooldowns struct {
	mu   sync.Mutex
	last map[CooldownKey]time.Time
}

// NewCooldowns creates an empty cooldown table.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[CooldownKey]time.Time)}
}

// ShouldLog accepts and records now iff the key has never been accepted or
// more than cooldown has elapsed since its last acceptance. The check and the
// update happen in one critical section.
func (c *Cooldowns) ShouldLog(camera string, kind Kind, cooldown time.Duration, now time.Time) bool {
	key := CooldownKey{Camera: camera, Kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) <= cooldown {
		return false
	}
	c.last[key] = now
	return true
}
