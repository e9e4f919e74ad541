package engine

import (
	"log/slog"
	"sync"
)

// Diagnostics receives rule failures encountered during evaluation. A
// failing rule is skipped for that observation only.
type Diagnostics interface {
	RuleFailed(ruleID string, err error)
}

// LogDiagnostics reports failures through slog.
type LogDiagnostics struct{}

// RuleFailed implements Diagnostics.
func (LogDiagnostics) RuleFailed(ruleID string, err error) {
	slog.Error("rule evaluation failed", "rule_id", ruleID, "error", err)
}

// RuleFailure is one recorded failure.
type RuleFailure struct {
	RuleID string
	Err    error
}

// RecordingDiagnostics keeps failures in memory.
type RecordingDiagnostics struct {
	mu       sync.Mutex
	failures []RuleFailure
}

// RuleFailed implements Diagnostics.
func (d *RecordingDiagnostics) RuleFailed(ruleID string, err error) {
	d.mu.Lock()
	d.failures = append(d.failures, RuleFailure{RuleID: ruleID, Err: err})
	d.mu.Unlock()
}

// Failures returns a copy of the recorded failures.
func (d *RecordingDiagnostics) Failures() []RuleFailure {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RuleFailure, len(d.failures))
	copy(out, d.failures)
	return out
}
