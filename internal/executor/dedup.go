package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
)

// Dedup drops signal IDs already seen within a time-to-live window. It is
// safe for concurrent use.
type Dedup struct {
	seen  map[string]time.Time // signalID -> first seen
	ttl   time.Duration
	clock clock.Clock
	mu    sync.Mutex
}

// NewDedup creates a Dedup that treats an ID as a duplicate if it was seen
// within ttl.
func NewDedup(ttl time.Duration, c clock.Clock) *Dedup {
	if c == nil {
		c = clock.Real{}
	}
	return &Dedup{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: c,
	}
}

// IsDuplicate reports whether signalID was seen within the TTL. An unseen or
// expired ID is recorded and reported as new.
func (d *Dedup) IsDuplicate(signalID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if firstSeen, ok := d.seen[signalID]; ok && now.Sub(firstSeen) < d.ttl {
		return true
	}
	d.seen[signalID] = now
	return false
}

// Cleanup removes expired entries. Call it periodically to bound memory.
func (d *Dedup) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	removed := 0
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked IDs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
