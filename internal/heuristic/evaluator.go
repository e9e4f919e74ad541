// Package heuristic evaluates behavioral rules against an observation's
// field map.
package heuristic

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
)

// Result is the outcome of evaluating one rule against one record.
type Result struct {
	Matched bool
	// Satisfied counts every condition that holds, computed only for a
	// match. It is used to annotate confidence, never to decide the match.
	Satisfied int
	Total     int
}

// Evaluate reports whether record satisfies rule.
func Evaluate(record map[string]any, rule *rules.HeuristicRule) bool {
	return matches(record, rule)
}

// EvaluateDetail evaluates rule and, on a match, counts the corroborating
// conditions.
func EvaluateDetail(record map[string]any, rule *rules.HeuristicRule) Result {
	res := Result{Total: len(rule.Conditions)}
	if !matches(record, rule) {
		return res
	}
	res.Matched = true
	for _, c := range rule.Conditions {
		if Check(record, c) {
			res.Satisfied++
		}
	}
	return res
}

func matches(record map[string]any, rule *rules.HeuristicRule) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	switch rule.Mode {
	case rules.ModeAll:
		for _, c := range rule.Conditions {
			if !Check(record, c) {
				return false
			}
		}
		return true
	case rules.ModeAny:
		for _, c := range rule.Conditions {
			if Check(record, c) {
				return true
			}
		}
	}
	return false
}

// Check evaluates a single condition. A field absent from the record never
// satisfies a condition, whatever the operator.
func Check(record map[string]any, c rules.Condition) bool {
	actual, ok := record[c.Field]
	if !ok || actual == nil {
		return false
	}
	if items, isList := asList(actual); isList {
		return checkList(items, c)
	}
	return checkScalar(actual, c)
}

func checkScalar(actual any, c rules.Condition) bool {
	switch c.Operator {
	case rules.OpEquals:
		return equal(actual, c.Value)
	case rules.OpNotEquals:
		return !equal(actual, c.Value)
	case rules.OpContains:
		return strings.Contains(normalize(actual), strings.ToLower(strings.TrimSpace(c.Value)))
	case rules.OpGreaterThan, rules.OpLessThan, rules.OpGreaterOrEqual, rules.OpLessOrEqual:
		a, ok := toFloat(actual)
		if !ok {
			return false
		}
		v, ok := parseFloat(c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case rules.OpGreaterThan:
			return a > v
		case rules.OpLessThan:
			return a < v
		case rules.OpGreaterOrEqual:
			return a >= v
		default:
			return a <= v
		}
	case rules.OpBetween:
		if c.Secondary == nil {
			return false
		}
		a, ok := toFloat(actual)
		if !ok {
			return false
		}
		low, ok := parseFloat(c.Value)
		if !ok {
			return false
		}
		high, ok := parseFloat(*c.Secondary)
		if !ok {
			return false
		}
		return low <= a && a <= high
	}
	return false
}

// checkList applies string operators element-wise. Numeric operators have
// no meaning for a list and never match.
func checkList(items []any, c rules.Condition) bool {
	switch c.Operator {
	case rules.OpEquals, rules.OpContains:
		for _, item := range items {
			if checkScalar(item, c) {
				return true
			}
		}
		return false
	case rules.OpNotEquals:
		for _, item := range items {
			if equal(item, c.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// equal compares numerically when both sides are numbers. NaN is never
// numerically equal to anything, so it falls back to the string form.
func equal(actual any, expected string) bool {
	if a, ok := toFloat(actual); ok && !math.IsNaN(a) {
		if v, ok := parseFloat(expected); ok && !math.IsNaN(v) {
			return a == v
		}
	}
	return normalize(actual) == strings.ToLower(strings.TrimSpace(expected))
}

// normalize is the string form used by equals, not_equals and contains.
func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(matcher.Stringify(v)))
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseFloat(n)
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
