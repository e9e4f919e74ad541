package sink

import (
	"context"
	"fmt"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/kafka"
)

// Publisher is the subset of *kafka.Producer used by KafkaSink.
type Publisher interface {
	ProduceJSON(ctx context.Context, key string, value any, headers ...kafka.Header) error
	Close() error
}

// KafkaSink publishes anomalies as JSON, keyed by rule ID so that each
// rule's anomalies stay ordered within a partition. Domain, severity and
// rule kind travel as headers so downstream consumers can route without
// decoding the payload.
type KafkaSink struct {
	producer Publisher
}

// NewKafkaSink wraps a producer.
func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{producer: p}
}

// Handle publishes a. It satisfies engine.AnomalyHandler.
func (s *KafkaSink) Handle(ctx context.Context, a *engine.Anomaly) error {
	err := s.producer.ProduceJSON(ctx, a.RuleID, a,
		kafka.StringHeader("domain", string(a.Domain)),
		kafka.StringHeader("severity", string(a.Severity)),
		kafka.StringHeader("rule_kind", string(a.RuleKind)),
	)
	if err != nil {
		return fmt.Errorf("publish anomaly %s: %w", a.ID, err)
	}
	return nil
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
