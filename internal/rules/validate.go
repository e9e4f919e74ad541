package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/vocab"
)

var (
	validateOnce sync.Once
	structCheck  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// Report yaml names so ValidationError.Part matches the rule file.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		structCheck = v
	})
	return structCheck
}

// Validate checks a literal rule's shape and pattern syntax.
func (r *LiteralRule) Validate() error {
	if err := checkStruct(r.ID, r); err != nil {
		return err
	}
	if !r.Domain.Valid() {
		return invalid(r.ID, "domain", ErrUnknownDomain, string(r.Domain))
	}
	if !r.Kind.Valid() {
		return invalid(r.ID, "kind", ErrUnknownKind, string(r.Kind))
	}
	if r.Field != "" {
		def, ok := vocab.Lookup(r.Domain, r.Field)
		if !ok || !def.Literal {
			return invalid(r.ID, "field", ErrFieldDomain, r.Field)
		}
	}
	if _, err := matcher.Compile(r.Kind, r.Pattern); err != nil {
		return invalid(r.ID, "pattern", ErrPatternSyntax, err.Error())
	}
	return nil
}

// Validate checks a heuristic rule's shape and every condition against the
// rule's domain vocabulary.
func (r *HeuristicRule) Validate() error {
	if len(r.Conditions) == 0 {
		return invalid(r.ID, "conditions", ErrNoConditions, "")
	}
	if err := checkStruct(r.ID, r); err != nil {
		return err
	}
	if !r.Domain.Valid() {
		return invalid(r.ID, "domain", ErrUnknownDomain, string(r.Domain))
	}
	for i, c := range r.Conditions {
		if !c.Operator.Valid() {
			return invalidCondition(r.ID, "condition.operator", i, ErrUnknownOperator, string(c.Operator))
		}
		if !vocab.HasField(r.Domain, c.Field) {
			return invalidCondition(r.ID, "condition.field", i, ErrFieldDomain,
				c.Field+" is not a "+string(r.Domain)+" field")
		}
		if c.Operator == OpBetween && (c.Secondary == nil || strings.TrimSpace(*c.Secondary) == "") {
			return invalidCondition(r.ID, "condition.secondary", i, ErrMissingSecondary, "")
		}
	}
	return nil
}

func checkStruct(ruleID string, rule any) error {
	err := structValidator().Struct(rule)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid(ruleID, "rule", ErrMissingField, err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Field() {
	case "threat_score":
		return invalid(ruleID, "threat_score", ErrInvalidScore, fmt.Sprint(fe.Value()))
	case "cooldown_ms":
		return invalid(ruleID, "cooldown_ms", ErrInvalidCooldown, "")
	case "conditions":
		return invalid(ruleID, "conditions", ErrNoConditions, "")
	case "mode":
		return invalid(ruleID, "mode", ErrInvalidMode, fmt.Sprint(fe.Value()))
	}
	return invalid(ruleID, fe.Field(), ErrMissingField, fe.Namespace())
}
