package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends messages to a topic with bounded retries.
type Producer struct {
	writer  messageWriter
	config  *Config
	logger  *slog.Logger
	metrics *producerMetrics
	closed  atomic.Bool
}

type producerMetrics struct {
	messagesProduced atomic.Int64
	bytesProduced    atomic.Int64
	errors           atomic.Int64
	retries          atomic.Int64
	lastError        atomic.Value // stores error
	lastErrorTime    atomic.Value // stores time.Time
}

// NewProducer creates a new Kafka producer.
func NewProducer(config *Config, logger *slog.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer, err := config.GetDialer()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.ProducerBatchSize,
		BatchTimeout: config.ProducerBatchTimeout,
		MaxAttempts:  1,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Compression:  config.GetCompression(),
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
			TLS:  dialer.TLS,
			SASL: dialer.SASLMechanism,
		},
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("kafka producer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"compression", config.CompressionType,
	)

	return newProducer(writer, config, logger), nil
}

func newProducer(w messageWriter, config *Config, logger *slog.Logger) *Producer {
	return &Producer{
		writer:  w,
		config:  config,
		logger:  logger,
		metrics: &producerMetrics{},
	}
}

// Produce sends a single message.
func (p *Producer) Produce(ctx context.Context, key, value []byte, headers ...Header) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	msg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: h.Key, Value: h.Value})
	}
	return p.produceMessages(ctx, msg)
}

// ProduceJSON marshals value to JSON and sends it under key with a
// content-type header ahead of the caller's headers.
func (p *Producer) ProduceJSON(ctx context.Context, key string, value any, headers ...Header) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message: %w", err)
	}
	all := append([]Header{{Key: "content-type", Value: []byte("application/json")}}, headers...)
	return p.Produce(ctx, []byte(key), data, all...)
}

// StringHeader builds a header from a string value.
func StringHeader(key, value string) Header {
	return Header{Key: key, Value: []byte(value)}
}

// produceMessages sends messages, retrying with exponential backoff.
func (p *Producer) produceMessages(ctx context.Context, messages ...kafka.Message) error {
	var lastErr error
	backoff := p.config.ProducerRetryBackoff

	for attempt := 0; attempt <= p.config.ProducerMaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := p.writer.WriteMessages(ctx, messages...)
		if err == nil {
			for _, msg := range messages {
				p.metrics.messagesProduced.Add(1)
				p.metrics.bytesProduced.Add(int64(len(msg.Value) + len(msg.Key)))
			}
			return nil
		}

		lastErr = err
		p.metrics.errors.Add(1)
		p.metrics.lastError.Store(err)
		p.metrics.lastErrorTime.Store(time.Now())

		p.logger.Warn("kafka produce failed",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", p.config.ProducerMaxRetries+1,
		)

		if isNonRetryableError(err) {
			return fmt.Errorf("kafka: non-retryable error: %w", err)
		}
	}

	return fmt.Errorf("kafka: failed after %d attempts: %w", p.config.ProducerMaxRetries+1, lastErr)
}

// GetMetrics returns current producer metrics.
func (p *Producer) GetMetrics() Metrics {
	m := Metrics{
		MessagesProduced: p.metrics.messagesProduced.Load(),
		BytesProduced:    p.metrics.bytesProduced.Load(),
		Errors:           p.metrics.errors.Load(),
		Retries:          p.metrics.retries.Load(),
	}
	if err, ok := p.metrics.lastError.Load().(error); ok {
		m.LastError = err
	}
	if t, ok := p.metrics.lastErrorTime.Load().(time.Time); ok {
		m.LastErrorTime = t
	}
	return m
}

// Close flushes buffered messages and closes the producer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.logger.Info("closing kafka producer",
		"messages_produced", p.metrics.messagesProduced.Load(),
		"errors", p.metrics.errors.Load(),
	)

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close producer: %w", err)
	}
	return nil
}

// isNonRetryableError checks if an error should not be retried.
func isNonRetryableError(err error) bool {
	for _, target := range []error{
		kafka.MessageSizeTooLarge,
		kafka.InvalidTopic,
		kafka.TopicAuthorizationFailed,
		kafka.ClusterAuthorizationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
