// Package classify maps threat scores to severity bands and annotates
// matches with a confidence label. The same banding applies to every rule
// kind.
package classify

import "flock-sentinel/internal/matcher"

// Severity is the discrete band derived from a threat score.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Band lower bounds, inclusive.
const (
	CriticalScore = 90
	HighScore     = 75
	MediumScore   = 50
	LowScore      = 25
)

// SeverityOf bands a 0-100 threat score. Scores outside the range clamp to
// the nearest band.
func SeverityOf(score int) Severity {
	switch {
	case score >= CriticalScore:
		return SeverityCritical
	case score >= HighScore:
		return SeverityHigh
	case score >= MediumScore:
		return SeverityMedium
	case score >= LowScore:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Rank orders severities, INFO lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Confidence annotates how strongly a match is corroborated. It never
// affects whether an anomaly is emitted.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// LiteralConfidence rates a literal-rule match. Address prefixes and exact
// tokens identify hardware directly; a regex or range is only as good as the
// author marked it.
func LiteralConfidence(specific bool, kind matcher.Kind) Confidence {
	switch {
	case specific:
		return ConfidenceHigh
	case kind == matcher.KindPrefix || kind == matcher.KindToken:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// HeuristicConfidence rates a heuristic match by the share of conditions
// that held.
func HeuristicConfidence(satisfied, total int) Confidence {
	if total <= 0 || satisfied <= 0 {
		return ConfidenceLow
	}
	switch ratio := float64(satisfied) / float64(total); {
	case satisfied >= 3 && ratio >= 0.99:
		return ConfidenceHigh
	case ratio >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
