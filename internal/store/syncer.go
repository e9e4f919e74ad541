package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/rules"
)

// SnapshotSource supplies the rule state to persist.
type SnapshotSource interface {
	Snapshot() *rules.RuleSet
}

// Syncer writes the engine's rule state to a Store after every change.
// Bursts of changes inside the debounce interval produce one write.
type Syncer struct {
	store    Store
	source   SnapshotSource
	debounce time.Duration

	pending chan struct{}
	mu      sync.Mutex
	lastErr error
	saves   int
}

// NewSyncer creates a syncer. Register Listener with the engine's OnChange
// and start Run.
func NewSyncer(store Store, source SnapshotSource, debounce time.Duration) *Syncer {
	return &Syncer{
		store:    store,
		source:   source,
		debounce: debounce,
		pending:  make(chan struct{}, 1),
	}
}

// Listener returns an engine change listener that schedules a save.
// Reloads from the store itself (ChangeLoaded) are not written back;
// imports and every other change are.
func (s *Syncer) Listener() engine.ChangeListener {
	return func(c engine.Change) {
		if c.Op == engine.ChangeLoaded {
			return
		}
		s.Trigger()
	}
}

// Trigger schedules a save without blocking.
func (s *Syncer) Trigger() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Run saves scheduled snapshots until ctx is done, then flushes any pending
// change.
func (s *Syncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			select {
			case <-s.pending:
				s.finalFlush()
			default:
			}
			return
		case <-s.pending:
			if s.debounce > 0 {
				timer := time.NewTimer(s.debounce)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					s.finalFlush()
					return
				}
				// Changes that arrived while waiting are covered by this save.
				select {
				case <-s.pending:
				default:
				}
			}
			s.Flush(ctx)
		}
	}
}

func (s *Syncer) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Flush(ctx)
}

// Flush saves the current snapshot immediately.
func (s *Syncer) Flush(ctx context.Context) error {
	err := s.store.Save(ctx, s.source.Snapshot())

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.saves++
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("failed to persist rule set", "error", err)
		return err
	}
	slog.Debug("persisted rule set")
	return nil
}

// Stats returns the number of successful saves and the last save error.
func (s *Syncer) Stats() (saves int, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.lastErr
}
