package engine

import (
	"context"
	"time"

	"flock-sentinel/internal/classify"
	"flock-sentinel/internal/vocab"

	"github.com/google/uuid"
)

// Location is an optional geolocation attached to an observation.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Observation is one snapshot produced by an acquisition subsystem.
type Observation struct {
	ID        string         `json:"id,omitempty"`
	Domain    vocab.Domain   `json:"domain"`
	Fields    map[string]any `json:"fields"`
	Location  *Location      `json:"location,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RuleKind identifies which rule store produced an anomaly.
type RuleKind string

const (
	RuleKindBuiltin   RuleKind = "builtin"
	RuleKindCustom    RuleKind = "custom"
	RuleKindHeuristic RuleKind = "heuristic"
)

// Detail is one technical key/value pair of an anomaly.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Anomaly is the engine's output. It is never modified after emission.
type Anomaly struct {
	ID             uuid.UUID           `json:"id"`
	Domain         vocab.Domain        `json:"domain"`
	RuleID         string              `json:"rule_id"`
	RuleName       string              `json:"rule_name"`
	RuleKind       RuleKind            `json:"rule_kind"`
	Classification string              `json:"classification"`
	Severity       classify.Severity   `json:"severity"`
	Confidence     classify.Confidence `json:"confidence"`
	ThreatScore    int                 `json:"threat_score"`
	Description    string              `json:"description"`
	Details        []Detail            `json:"details,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Location       *Location           `json:"location,omitempty"`
	Manufacturer   string              `json:"manufacturer,omitempty"`
	ObservationID  string              `json:"observation_id,omitempty"`
}

// Detail returns the value recorded under key.
func (a *Anomaly) Detail(key string) (string, bool) {
	for _, d := range a.Details {
		if d.Key == key {
			return d.Value, true
		}
	}
	return "", false
}

// AnomalyHandler receives every emitted anomaly.
type AnomalyHandler func(context.Context, *Anomaly) error

// ChangeOp is the kind of rule-state mutation.
type ChangeOp string

const (
	ChangeAdded   ChangeOp = "added"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
	ChangeToggled ChangeOp = "toggled"
	ChangeLoaded  ChangeOp = "loaded"
	// ChangeImported replaces the rule state from an external rule set.
	// Unlike ChangeLoaded it is not a reload of persisted state.
	ChangeImported ChangeOp = "imported"
)

// ChangeTarget is the rule store a change applies to.
type ChangeTarget string

const (
	TargetCustom    ChangeTarget = "custom"
	TargetHeuristic ChangeTarget = "heuristic"
	TargetCategory  ChangeTarget = "category"
	TargetAll       ChangeTarget = "all"
)

// Change describes a committed mutation of the engine's rule state.
type Change struct {
	Op      ChangeOp
	Target  ChangeTarget
	ID      string
	Enabled bool
}

// ChangeListener is notified after each committed change, outside the
// engine's locks.
type ChangeListener func(Change)

// CategoryState is a catalog category with its current toggle.
type CategoryState struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Domains     []vocab.Domain `json:"domains"`
	Enabled     bool           `json:"enabled"`
	Rules       int            `json:"rules"`
}
