// Package rules provides the detection rule definitions: literal pattern
// rules, behavioral heuristic rules, their creation-time validation, and the
// YAML rule-set document used to persist them.
package rules

import (
	"time"

	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/vocab"
)

// Source records who authored a literal rule.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
)

// LiteralRule matches a single observed identifier-like value.
type LiteralRule struct {
	ID          string       `json:"id" yaml:"id" validate:"required"`
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Domain      vocab.Domain `json:"domain" yaml:"domain" validate:"required"`
	Kind        matcher.Kind `json:"kind" yaml:"kind" validate:"required"`
	Pattern     string       `json:"pattern" yaml:"pattern" validate:"required"`
	// Field restricts matching to one literal field; empty means every
	// literal field of the domain.
	Field          string `json:"field,omitempty" yaml:"field,omitempty"`
	Classification string `json:"classification" yaml:"classification" validate:"required"`
	ThreatScore    int    `json:"threat_score" yaml:"threat_score" validate:"min=0,max=100"`
	Manufacturer   string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	// Category groups builtin rules under one toggle. Unused for custom rules.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Specific marks a high-specificity pattern (an exact vendor prefix or
	// product string) as opposed to a generic fallback.
	Specific  bool      `json:"specific,omitempty" yaml:"specific,omitempty"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Source    Source    `json:"source" yaml:"source" validate:"omitempty,oneof=builtin custom"`
}

// Matches reports whether value satisfies the rule's pattern. It shares the
// compiled-pattern cache with the engine, so previews see live semantics.
func (r *LiteralRule) Matches(value string) bool {
	return matcher.Matches(value, r.Kind, r.Pattern)
}

// Operator is a heuristic condition comparison.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpBetween        Operator = "between"
	OpContains       Operator = "contains"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpGreaterOrEqual, OpLessOrEqual, OpBetween, OpContains:
		return true
	}
	return false
}

// Numeric reports whether op compares both sides as numbers.
func (op Operator) Numeric() bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpBetween:
		return true
	}
	return false
}

// Condition is one field test of a heuristic rule.
type Condition struct {
	Field    string   `json:"field" yaml:"field" validate:"required"`
	Operator Operator `json:"operator" yaml:"operator" validate:"required"`
	Value    string   `json:"value" yaml:"value"`
	// Secondary is the upper bound for between; ignored by other operators.
	Secondary *string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// Mode combines per-condition results.
type Mode string

const (
	ModeAll Mode = "all"
	ModeAny Mode = "any"
)

// HeuristicRule is a behavioral rule over several fields of one domain.
type HeuristicRule struct {
	ID             string       `json:"id" yaml:"id" validate:"required"`
	Name           string       `json:"name" yaml:"name" validate:"required"`
	Description    string       `json:"description,omitempty" yaml:"description,omitempty"`
	Domain         vocab.Domain `json:"domain" yaml:"domain" validate:"required"`
	Conditions     []Condition  `json:"conditions" yaml:"conditions" validate:"min=1,dive"`
	Mode           Mode         `json:"mode" yaml:"mode" validate:"required,oneof=all any"`
	Classification string       `json:"classification" yaml:"classification" validate:"required"`
	ThreatScore    int          `json:"threat_score" yaml:"threat_score" validate:"min=0,max=100"`
	CooldownMs     int64        `json:"cooldown_ms" yaml:"cooldown_ms" validate:"min=0"`
	Enabled        bool         `json:"enabled" yaml:"enabled"`
	CreatedAt      time.Time    `json:"created_at" yaml:"created_at"`
}

// Cooldown returns the minimum spacing between two anomalies of the rule.
func (r *HeuristicRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMs) * time.Millisecond
}

// StringPtr is a helper for building conditions with a secondary value.
func StringPtr(s string) *string { return &s }
