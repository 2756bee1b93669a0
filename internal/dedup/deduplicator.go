// Package dedup suppresses repeat violation events inside a cooldown window
// so one persistent condition produces one workflow instance, not a stream.
package dedup

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Deduplicator admits the first violation event for each violation key and
// rejects further events for that key until the cooldown window elapses.
// The check-and-set is atomic: under concurrent delivery of the same key,
// exactly one caller wins.
type Deduplicator struct {
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	rejected uint64
	admitted uint64
}

func New(cooldown time.Duration, log zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		cooldown: cooldown,
		log:      log.With().Str("component", "deduplicator").Logger(),
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// Admit reports whether a violation with the given key should start a
// workflow. Admission resets the key's cooldown; rejection never does, so a
// condition that keeps firing still realerts once per window.
func (d *Deduplicator) Admit(key string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < d.cooldown {
		d.rejected++
		d.log.Debug().Str("violation_key", key).Time("last_admitted", last).Msg("Violation suppressed within cooldown")
		return false
	}

	d.lastSeen[key] = now
	d.admitted++
	return true
}

// Sweep drops entries whose cooldown has fully elapsed. Run periodically so
// the map does not grow without bound across long uptimes.
func (d *Deduplicator) Sweep() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, last := range d.lastSeen {
		if now.Sub(last) >= d.cooldown {
			delete(d.lastSeen, key)
			removed++
		}
	}
	if removed > 0 {
		d.log.Debug().Int("removed", removed).Int("tracked", len(d.lastSeen)).Msg("Swept expired cooldown entries")
	}
	return removed
}

// Stats returns counters for the status endpoint.
func (d *Deduplicator) Stats() (admitted, rejected uint64, tracked int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admitted, d.rejected, len(d.lastSeen)
}

// SetClock overrides the time source for tests.
func (d *Deduplicator) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}
