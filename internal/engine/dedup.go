package engine

import (
	"sync"
	"time"
)

// dedupWindow suppresses repeats of the same literal rule on the same value.
type dedupWindow struct {
	window time.Duration

	mu        sync.Mutex
	seen      map[dedupKey]time.Time
	lastSweep time.Time
}

type dedupKey struct {
	ruleID string
	value  string
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window: window,
		seen:   make(map[dedupKey]time.Time),
	}
}

// allow reports whether (ruleID, value) may emit at now and records it if so.
func (d *dedupWindow) allow(ruleID, value string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastSweep) >= d.window {
		for k, t := range d.seen {
			if now.Sub(t) >= d.window {
				delete(d.seen, k)
			}
		}
		d.lastSweep = now
	}

	key := dedupKey{ruleID: ruleID, value: value}
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now
	return true
}

func (d *dedupWindow) reset() {
	d.mu.Lock()
	d.seen = make(map[dedupKey]time.Time)
	d.mu.Unlock()
}
