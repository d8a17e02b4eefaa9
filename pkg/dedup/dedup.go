// Package dedup drops redelivered messages by ID within a time window.
package dedup

import (
	"sync"
	"time"
)

// Deduper remembers message IDs for ttl, holding at most max live entries
type Deduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
	now  func() time.Time
}

// New creates a Deduper; non-positive arguments fall back to 10m and 10000
func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{
		ttl:  ttl,
		max:  max,
		seen: make(map[string]time.Time, max),
		now:  time.Now,
	}
}

// ShouldProcess reports whether id is new within the window and marks it seen.
// An empty id always passes.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false
	}
	d.seen[id] = now.Add(d.ttl)

	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

// Forget releases id so a later redelivery is processed again.
// Call it when handling a claimed message failed.
func (d *Deduper) Forget(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Len returns the number of remembered IDs, expired or not
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduper) evict(now time.Time) {
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	// still over capacity: drop the entries closest to expiry
	for len(d.seen) > d.max {
		var oldest string
		var oldestExp time.Time
		for k, exp := range d.seen {
			if oldest == "" || exp.Before(oldestExp) {
				oldest, oldestExp = k, exp
			}
		}
		delete(d.seen, oldest)
	}
}
