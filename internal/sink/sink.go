// Package sink delivers emitted anomalies to external consumers: the
// structured log, a Kafka topic and the ClickHouse anomaly history.
package sink

import (
	"context"
	"log/slog"

	"flock-sentinel/internal/classify"
	"flock-sentinel/internal/engine"
)

// LogSink writes one structured log record per anomaly.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "anomaly-log")}
}

// Handle logs a. It satisfies engine.AnomalyHandler.
func (s *LogSink) Handle(ctx context.Context, a *engine.Anomaly) error {
	attrs := []slog.Attr{
		slog.String("anomaly_id", a.ID.String()),
		slog.String("domain", string(a.Domain)),
		slog.String("rule_id", a.RuleID),
		slog.String("rule_kind", string(a.RuleKind)),
		slog.String("classification", a.Classification),
		slog.String("severity", string(a.Severity)),
		slog.String("confidence", string(a.Confidence)),
		slog.Int("threat_score", a.ThreatScore),
	}
	if a.ObservationID != "" {
		attrs = append(attrs, slog.String("observation_id", a.ObservationID))
	}
	if a.Location != nil {
		attrs = append(attrs, slog.Group("location",
			slog.Float64("latitude", a.Location.Latitude),
			slog.Float64("longitude", a.Location.Longitude),
		))
	}
	if len(a.Details) > 0 {
		details := make([]any, 0, len(a.Details))
		for _, d := range a.Details {
			details = append(details, slog.String(d.Key, d.Value))
		}
		attrs = append(attrs, slog.Group("details", details...))
	}

	s.logger.LogAttrs(ctx, levelFor(a), "anomaly detected", attrs...)
	return nil
}

func levelFor(a *engine.Anomaly) slog.Level {
	if a.Severity.Rank() >= classify.SeverityHigh.Rank() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
