package event

import (
	"sync"
	"time"
)

// maxDedupEntries is the size threshold past which the dedup map is pruned.
const maxDedupEntries = 4096

// deduper suppresses repeated broadcasts for the same entity+event type
// within the window. It is owned by the Broadcaster; there is no package
// level state.
type deduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newDeduper(window time.Duration) *deduper {
	return &deduper{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// shouldEmit reports whether a broadcast under key may proceed. When it may,
// the current time is recorded so the next occurrence inside the window is
// suppressed.
func (d *deduper) shouldEmit(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now
	if len(d.seen) > maxDedupEntries {
		d.prune(now)
	}
	return true
}

// prune drops entries older than twice the window. Caller holds the lock.
func (d *deduper) prune(now time.Time) {
	cutoff := now.Add(-2 * d.window)
	for key, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, key)
		}
	}
}
