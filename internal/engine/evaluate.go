package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"flock-sentinel/internal/classify"
	"flock-sentinel/internal/heuristic"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"

	"github.com/google/uuid"
)

// ruleUniverse is the set of rules selected for one observation, captured
// under the read lock.
type ruleUniverse struct {
	builtin   []*rules.LiteralRule
	custom    []*rules.LiteralRule
	heuristic []*rules.HeuristicRule
	handlers  []AnomalyHandler
}

func (e *Engine) selectRules(domain vocab.Domain) ruleUniverse {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var u ruleUniverse
	for _, r := range e.builtin {
		if r.Domain == domain && e.categories[r.Category] {
			u.builtin = append(u.builtin, r)
		}
	}
	for _, r := range e.custom {
		if r.Domain == domain && r.Enabled {
			u.custom = append(u.custom, r)
		}
	}
	for _, r := range e.heuristic {
		if r.Domain == domain && r.Enabled {
			u.heuristic = append(u.heuristic, r)
		}
	}
	u.handlers = append(u.handlers, e.handlers...)
	return u
}

// Submit evaluates one observation and returns the anomalies it produced, in
// evaluation order: built-in literal, custom literal, then heuristic. Each
// anomaly is also passed to every registered handler before Submit returns.
// Rule failures are reported to diagnostics and never returned.
func (e *Engine) Submit(ctx context.Context, obs *Observation) []*Anomaly {
	if obs == nil {
		return nil
	}
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	u := e.selectRules(obs.Domain)
	e.metrics.ObservationEvaluated(string(obs.Domain))

	var out []*Anomaly
	for _, r := range u.builtin {
		if a := e.evalLiteral(obs, r, RuleKindBuiltin, ts); a != nil {
			out = append(out, a)
		}
	}
	for _, r := range u.custom {
		if a := e.evalLiteral(obs, r, RuleKindCustom, ts); a != nil {
			out = append(out, a)
		}
	}
	for _, r := range u.heuristic {
		if a := e.evalHeuristic(ctx, obs, r, ts); a != nil {
			out = append(out, a)
		}
	}

	for _, a := range out {
		e.metrics.AnomalyEmitted(string(a.Domain), string(a.RuleKind), string(a.Severity))
		for _, h := range u.handlers {
			if err := h(ctx, a); err != nil {
				e.metrics.HandlerFailed()
				slog.Error("anomaly handler failed", "rule_id", a.RuleID, "anomaly_id", a.ID, "error", err)
			}
		}
	}
	return out
}

// evalLiteral matches r against the literal fields of obs. The first value
// that matches, and is not inside the dedup window, produces the rule's
// single anomaly for this observation.
func (e *Engine) evalLiteral(obs *Observation, r *rules.LiteralRule, kind RuleKind, ts time.Time) (a *Anomaly) {
	defer func() {
		if p := recover(); p != nil {
			e.ruleFailed(r.ID, kind, fmt.Errorf("panic during evaluation: %v", p))
			a = nil
		}
	}()

	pattern, err := e.patterns.Get(r.Kind, r.Pattern)
	if err != nil {
		e.ruleFailed(r.ID, kind, err)
		return nil
	}

	fields := vocab.LiteralFields(obs.Domain)
	if r.Field != "" {
		fields = []string{r.Field}
	}

	for _, field := range fields {
		raw, ok := obs.Fields[field]
		if !ok || raw == nil {
			continue
		}
		for _, value := range literalValues(raw) {
			if !pattern.Match(value) {
				continue
			}
			if e.dedup != nil && !e.dedup.allow(r.ID, value, ts) {
				continue
			}
			return e.literalAnomaly(obs, r, kind, field, value, ts)
		}
	}
	return nil
}

func (e *Engine) literalAnomaly(obs *Observation, r *rules.LiteralRule, kind RuleKind, field, value string, ts time.Time) *Anomaly {
	description := r.Description
	if description == "" {
		description = fmt.Sprintf("%s matched %s %q", r.Name, field, value)
	}
	return &Anomaly{
		ID:             uuid.New(),
		Domain:         obs.Domain,
		RuleID:         r.ID,
		RuleName:       r.Name,
		RuleKind:       kind,
		Classification: r.Classification,
		Severity:       classify.SeverityOf(r.ThreatScore),
		Confidence:     e.confidence(ConfidenceInput{Kind: kind, Literal: r}),
		ThreatScore:    r.ThreatScore,
		Description:    description,
		Details: []Detail{
			{Key: "field", Value: field},
			{Key: "value", Value: value},
			{Key: "pattern_kind", Value: string(r.Kind)},
			{Key: "pattern", Value: r.Pattern},
		},
		Timestamp:     ts,
		Location:      obs.Location,
		Manufacturer:  r.Manufacturer,
		ObservationID: obs.ID,
	}
}

// evalHeuristic evaluates r and, on a match, claims the rule's cooldown
// slot. A tracker failure is reported and the anomaly is still emitted.
func (e *Engine) evalHeuristic(ctx context.Context, obs *Observation, r *rules.HeuristicRule, ts time.Time) (a *Anomaly) {
	defer func() {
		if p := recover(); p != nil {
			e.ruleFailed(r.ID, RuleKindHeuristic, fmt.Errorf("panic during evaluation: %v", p))
			a = nil
		}
	}()

	res := heuristic.EvaluateDetail(obs.Fields, r)
	if !res.Matched {
		return nil
	}

	fire, err := e.tracker.TryFire(ctx, r.ID, ts, r.Cooldown())
	if err != nil {
		e.ruleFailed(r.ID, RuleKindHeuristic, fmt.Errorf("cooldown check: %w", err))
		fire = true
	}
	if !fire {
		e.metrics.Suppressed(string(obs.Domain))
		slog.Debug("heuristic rule suppressed by cooldown", "rule_id", r.ID, "domain", obs.Domain)
		return nil
	}

	details := []Detail{
		{Key: "mode", Value: string(r.Mode)},
		{Key: "conditions_met", Value: fmt.Sprintf("%d/%d", res.Satisfied, res.Total)},
		{Key: "cooldown_ms", Value: strconv.FormatInt(r.CooldownMs, 10)},
	}
	for _, c := range r.Conditions {
		if v, ok := obs.Fields[c.Field]; ok && v != nil {
			details = append(details, Detail{Key: c.Field, Value: matcher.Stringify(v)})
		}
	}

	description := r.Description
	if description == "" {
		description = fmt.Sprintf("%s: %s", r.Name, describeConditions(r))
	}

	return &Anomaly{
		ID:             uuid.New(),
		Domain:         obs.Domain,
		RuleID:         r.ID,
		RuleName:       r.Name,
		RuleKind:       RuleKindHeuristic,
		Classification: r.Classification,
		Severity:       classify.SeverityOf(r.ThreatScore),
		Confidence: e.confidence(ConfidenceInput{
			Kind:      RuleKindHeuristic,
			Heuristic: r,
			Satisfied: res.Satisfied,
			Total:     res.Total,
		}),
		ThreatScore:   r.ThreatScore,
		Description:   description,
		Details:       details,
		Timestamp:     ts,
		Location:      obs.Location,
		ObservationID: obs.ID,
	}
}

func (e *Engine) ruleFailed(ruleID string, kind RuleKind, err error) {
	e.metrics.RuleFailed(string(kind))
	e.diag.RuleFailed(ruleID, err)
}

func describeConditions(r *rules.HeuristicRule) string {
	parts := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if c.Operator == rules.OpBetween && c.Secondary != nil {
			parts = append(parts, fmt.Sprintf("%s between %s and %s", c.Field, c.Value, *c.Secondary))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value))
	}
	join := " AND "
	if r.Mode == rules.ModeAny {
		join = " OR "
	}
	return strings.Join(parts, join)
}

// literalValues flattens a field value into the strings a pattern is tried
// against. Lists are tried element by element.
func literalValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item != nil {
				out = append(out, matcher.Stringify(item))
			}
		}
		return out
	default:
		return []string{matcher.Stringify(val)}
	}
}
