package service

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Dedup remembers client order ids for a time-to-live window so a retried
// submission is not accepted twice. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // client order id -> first seen
	ttl  time.Duration
	clk  clock.Clock
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key as a duplicate if it was seen
// within ttl on clk.
func NewDedup(ttl time.Duration, clk clock.Clock) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		clk:  clk,
	}
}

// Seen reports whether key was recorded within the TTL window.
func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts, ok := d.seen[key]
	return ok && d.clk.Now().Sub(ts) < d.ttl
}

// Remember records key as seen now.
func (d *Dedup) Remember(key string) {
	d.mu.Lock()
	d.seen[key] = d.clk.Now()
	d.mu.Unlock()
}

// Cleanup removes entries older than the TTL. It is called from the
// order-processing tick to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clk.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
