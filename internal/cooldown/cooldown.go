// Package cooldown tracks when each heuristic rule last produced an anomaly
// and suppresses re-emission inside the rule's cooldown window.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Tracker is the cooldown state shared by every evaluation. TryFire is the
// operation the engine uses: it performs the check and the record as one
// step so two concurrent matches of the same rule cannot both fire.
type Tracker interface {
	// ShouldFire reports whether ruleID may fire at now.
	ShouldFire(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error)
	// Record stores now as the last fire time of ruleID.
	Record(ctx context.Context, ruleID string, now time.Time) error
	// TryFire records now and returns true if ruleID may fire, otherwise
	// leaves the state unchanged and returns false.
	TryFire(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error)
	// Reset forgets the given rules, or every rule when none are given.
	Reset(ctx context.Context, ruleIDs ...string) error
}

// ready is the firing predicate shared by the implementations.
func ready(last time.Time, seen bool, now time.Time, cooldown time.Duration) bool {
	return !seen || now.Sub(last) >= cooldown
}

// MemoryTracker keeps fire times in process memory for the lifetime of the
// process.
type MemoryTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{last: make(map[string]time.Time)}
}

// ShouldFire implements Tracker.
func (t *MemoryTracker) ShouldFire(_ context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[ruleID]
	return ready(last, seen, now, cooldown), nil
}

// Record implements Tracker.
func (t *MemoryTracker) Record(_ context.Context, ruleID string, now time.Time) error {
	t.mu.Lock()
	t.last[ruleID] = now
	t.mu.Unlock()
	return nil
}

// TryFire implements Tracker.
func (t *MemoryTracker) TryFire(_ context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, seen := t.last[ruleID]
	if !ready(last, seen, now, cooldown) {
		return false, nil
	}
	t.last[ruleID] = now
	return true, nil
}

// Reset implements Tracker.
func (t *MemoryTracker) Reset(_ context.Context, ruleIDs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(ruleIDs) == 0 {
		t.last = make(map[string]time.Time)
		return nil
	}
	for _, id := range ruleIDs {
		delete(t.last, id)
	}
	return nil
}

// LastFired returns the recorded fire time of ruleID.
func (t *MemoryTracker) LastFired(ruleID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[ruleID]
	return last, ok
}

// Len returns the number of rules with a recorded fire time.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
