package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleSetVersion is the current rule document format.
const RuleSetVersion = 1

// RuleSet is the persisted form of the user-authored rule state: custom
// literal rules, heuristic rules, and category toggles that differ from the
// catalog defaults.
type RuleSet struct {
	Version    int             `json:"version" yaml:"version"`
	Literal    []LiteralRule   `json:"literal,omitempty" yaml:"literal,omitempty"`
	Heuristic  []HeuristicRule `json:"heuristic,omitempty" yaml:"heuristic,omitempty"`
	Categories map[string]bool `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Validate validates every rule in the set.
func (rs *RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs.Literal)+len(rs.Heuristic))
	for i := range rs.Literal {
		r := &rs.Literal[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("literal rule %d: %w", i, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("literal rule %d: %w: %s", i, ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
	}
	for i := range rs.Heuristic {
		r := &rs.Heuristic[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("heuristic rule %d: %w", i, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("heuristic rule %d: %w: %s", i, ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// MarshalRuleSet encodes a rule set as YAML.
func MarshalRuleSet(rs *RuleSet) ([]byte, error) {
	if rs.Version == 0 {
		rs.Version = RuleSetVersion
	}
	data, err := yaml.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule set: %w", err)
	}
	return data, nil
}

// ParseRuleSet decodes and validates a YAML rule set.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if rs.Version > RuleSetVersion {
		return nil, fmt.Errorf("unsupported rule set version %d", rs.Version)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	return &rs, nil
}

// ParseLiteralRules parses a YAML list of literal rules, or a single rule.
func ParseLiteralRules(data []byte) ([]LiteralRule, error) {
	var list []LiteralRule
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single LiteralRule
		if singleErr := yaml.Unmarshal(data, &single); singleErr != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		list = []LiteralRule{single}
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return list, nil
}

// ParseHeuristicRules parses a YAML list of heuristic rules, or a single rule.
func ParseHeuristicRules(data []byte) ([]HeuristicRule, error) {
	var list []HeuristicRule
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single HeuristicRule
		if singleErr := yaml.Unmarshal(data, &single); singleErr != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		list = []HeuristicRule{single}
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return list, nil
}
