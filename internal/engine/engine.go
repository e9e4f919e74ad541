// Package engine evaluates observations against the built-in catalog, custom
// literal rules and heuristic rules, and emits anomalies to registered
// handlers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flock-sentinel/internal/catalog"
	"flock-sentinel/internal/classify"
	"flock-sentinel/internal/cooldown"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/metrics"
	"flock-sentinel/internal/rules"
)

var (
	ErrQueueFull       = errors.New("observation queue full")
	ErrNotRunning      = errors.New("engine not started")
	ErrUnknownCategory = errors.New("unknown category")
)

// Config configures the engine.
type Config struct {
	WorkerCount int // Number of intake workers started by Start
	QueueSize   int // Capacity of the asynchronous intake queue
	// DisabledCategories are switched off at construction.
	DisabledCategories []string
	// LiteralDedupWindow suppresses a repeat of the same literal rule on the
	// same matched value inside the window. Zero disables it.
	LiteralDedupWindow time.Duration
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 4,
		QueueSize:   10000,
	}
}

// Engine owns the rule stores and evaluates observations against them.
type Engine struct {
	config Config

	mu         sync.RWMutex
	builtin    []*rules.LiteralRule
	custom     []*rules.LiteralRule
	heuristic  []*rules.HeuristicRule
	categories map[string]bool
	handlers   []AnomalyHandler
	listeners  []ChangeListener

	tracker    cooldown.Tracker
	patterns   *matcher.Cache
	diag       Diagnostics
	metrics    *metrics.Collector
	now        func() time.Time
	confidence ConfidenceFunc
	dedup      *dedupWindow

	obsCh    chan *Observation
	stopCh   chan struct{}
	stopOnce sync.Once
	runMu    sync.Mutex
	running  bool
	wg       sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTracker sets the cooldown tracker. Defaults to a MemoryTracker.
func WithTracker(t cooldown.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithDiagnostics sets the rule failure sink. Defaults to slog.
func WithDiagnostics(d Diagnostics) Option {
	return func(e *Engine) { e.diag = d }
}

// WithMetrics records engine activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithClock sets the time source used for observations without a timestamp
// and for rule creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConfidence replaces the confidence annotation.
func WithConfidence(f ConfidenceFunc) Option {
	return func(e *Engine) { e.confidence = f }
}

// WithPatternCache sets the compiled pattern cache. Defaults to the
// process-wide cache shared with matcher.Matches.
func WithPatternCache(c *matcher.Cache) Option {
	return func(e *Engine) { e.patterns = c }
}

// New creates an engine loaded with the built-in catalog and no custom or
// heuristic rules.
func New(config Config, opts ...Option) (*Engine, error) {
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	e := &Engine{
		config:     config,
		categories: catalog.DefaultCategoryState(),
		tracker:    cooldown.NewMemoryTracker(),
		patterns:   matcher.Default(),
		diag:       LogDiagnostics{},
		now:        time.Now,
		confidence: DefaultConfidence,
		obsCh:      make(chan *Observation, config.QueueSize),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, name := range config.DisabledCategories {
		if _, ok := e.categories[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
		}
		e.categories[name] = false
	}

	for _, r := range catalog.Builtin() {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("builtin rule %s: %w", r.ID, err)
		}
		rule := r
		e.builtin = append(e.builtin, &rule)
	}

	if config.LiteralDedupWindow > 0 {
		e.dedup = newDedupWindow(config.LiteralDedupWindow)
	}

	e.updateRuleGauges()
	return e, nil
}

// OnAnomaly registers a handler called for every emitted anomaly.
func (e *Engine) OnAnomaly(handler AnomalyHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// OnChange registers a listener for committed rule-state changes.
func (e *Engine) OnChange(listener ChangeListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Tracker returns the cooldown tracker in use.
func (e *Engine) Tracker() cooldown.Tracker {
	return e.tracker
}

// Enqueue hands an observation to the intake workers.
func (e *Engine) Enqueue(obs *Observation) error {
	e.runMu.Lock()
	running := e.running
	e.runMu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case e.obsCh <- obs:
		return nil
	default:
		e.metrics.Dropped()
		slog.Warn("observation queue full, dropping observation", "domain", obs.Domain)
		return ErrQueueFull
	}
}

// Start starts the intake workers.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	e.running = true

	for i := 0; i < e.config.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	slog.Info("detection engine started", "workers", e.config.WorkerCount)
}

// Stop stops the intake workers and waits for in-flight evaluations.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
		close(e.stopCh)
	})
	e.wg.Wait()
	slog.Info("detection engine stopped")
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case obs := <-e.obsCh:
			e.Submit(ctx, obs)
		}
	}
}

func (e *Engine) updateRuleGauges() {
	e.mu.RLock()
	builtin, custom, heuristic := len(e.builtin), len(e.custom), len(e.heuristic)
	e.mu.RUnlock()
	e.metrics.SetRules(string(RuleKindBuiltin), builtin)
	e.metrics.SetRules(string(RuleKindCustom), custom)
	e.metrics.SetRules(string(RuleKindHeuristic), heuristic)
}

// ConfidenceInput describes a match for confidence annotation.
type ConfidenceInput struct {
	Kind      RuleKind
	Literal   *rules.LiteralRule
	Heuristic *rules.HeuristicRule
	Satisfied int
	Total     int
}

// ConfidenceFunc labels a match. Its result never affects emission.
type ConfidenceFunc func(ConfidenceInput) classify.Confidence

// DefaultConfidence rates literal matches by pattern specificity and
// heuristic matches by the share of conditions that held.
func DefaultConfidence(in ConfidenceInput) classify.Confidence {
	if in.Literal != nil {
		return classify.LiteralConfidence(in.Literal.Specific, in.Literal.Kind)
	}
	return classify.HeuristicConfidence(in.Satisfied, in.Total)
}
