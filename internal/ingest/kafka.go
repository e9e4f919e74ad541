package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/kafka"
)

// Enqueuer queues observations for asynchronous evaluation.
type Enqueuer interface {
	Enqueue(obs *engine.Observation) error
}

// KafkaHandler decodes observations from Kafka messages and queues them on
// the engine.
type KafkaHandler struct {
	engine  Enqueuer
	logger  *slog.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewKafkaHandler creates a handler for the observation topic.
func NewKafkaHandler(e Enqueuer, logger *slog.Logger) *KafkaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaHandler{
		engine:  e,
		logger:  logger,
		backoff: 50 * time.Millisecond,
		now:     time.Now,
	}
}

// Handle satisfies kafka.MessageHandler. Undecodable or invalid messages
// are logged and acknowledged so they do not block the partition. A full
// queue is retried until ctx ends, and the error returned then leaves the
// message uncommitted.
func (h *KafkaHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var obs engine.Observation
	if err := json.Unmarshal(msg.Value, &obs); err != nil {
		h.logger.Warn("dropping undecodable observation",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if err := prepareObservation(&obs, h.now); err != nil {
		h.logger.Warn("dropping invalid observation",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	backoff := h.backoff
	for {
		err := h.engine.Enqueue(&obs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, engine.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}
