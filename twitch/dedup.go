package twitch

import (
	"sync"
	"time"
)

// dedupWindow remembers recently seen message ids so replayed deliveries can
// be acknowledged without reprocessing. Entries expire after ttl; pruning
// happens inline so the map never grows unbounded.
type dedupWindow struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time
	nextPrune time.Time
	now       func() time.Time
}

func newDedupWindow(ttl time.Duration) *dedupWindow {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &dedupWindow{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records id and reports whether it was already present within the
// window. Check and insert are one atomic step, so two concurrent deliveries
// of the same id cannot both pass.
func (d *dedupWindow) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.After(d.nextPrune) {
		for k, t := range d.seen {
			if now.Sub(t) > d.ttl {
				delete(d.seen, k)
			}
		}
		d.nextPrune = now.Add(d.ttl / 2)
	}

	if t, ok := d.seen[id]; ok && now.Sub(t) <= d.ttl {
		return true
	}
	d.seen[id] = now
	return false
}
