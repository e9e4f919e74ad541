package rules

import (
	"errors"
	"fmt"
)

// Validation failures. Each ValidationError wraps exactly one of these so
// callers can branch with errors.Is.
var (
	ErrPatternSyntax    = errors.New("invalid pattern syntax")
	ErrNoConditions     = errors.New("at least one condition required")
	ErrFieldDomain      = errors.New("field does not belong to rule domain")
	ErrMissingSecondary = errors.New("between operator requires a secondary value")
	ErrUnknownOperator  = errors.New("unknown operator")
	ErrUnknownDomain    = errors.New("unknown domain")
	ErrUnknownKind      = errors.New("unknown literal kind")
	ErrInvalidScore     = errors.New("threat score must be between 0 and 100")
	ErrInvalidCooldown  = errors.New("cooldown must not be negative")
	ErrInvalidMode      = errors.New("mode must be all or any")
	ErrMissingField     = errors.New("required field missing")
)

// Store-level failures returned by the engine's CRUD operations.
var (
	ErrDuplicateID = errors.New("rule id already exists")
	ErrNotFound    = errors.New("rule not found")
)

// ValidationError names the part of a rule that was rejected.
type ValidationError struct {
	RuleID string
	// Part is the offending piece: "pattern", "conditions", "condition.field",
	// "condition.operator", "condition.secondary", "domain", "kind",
	// "threat_score", "cooldown_ms", "mode", or a required field name.
	Part string
	// Index is the condition position for condition.* parts, otherwise -1.
	Index  int
	Err    error
	Detail string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Index >= 0 {
		msg = fmt.Sprintf("condition %d: %s", e.Index, msg)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.RuleID != "" {
		return fmt.Sprintf("rule %s: %s: %s", e.RuleID, e.Part, msg)
	}
	return fmt.Sprintf("%s: %s", e.Part, msg)
}

// Unwrap returns the sentinel for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(ruleID, part string, err error, detail string) *ValidationError {
	return &ValidationError{RuleID: ruleID, Part: part, Index: -1, Err: err, Detail: detail}
}

func invalidCondition(ruleID, part string, index int, err error, detail string) *ValidationError {
	return &ValidationError{RuleID: ruleID, Part: part, Index: index, Err: err, Detail: detail}
}

// AsValidation extracts a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
