package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerBackoff caps the pause between redeliveries of one message.
const maxHandlerBackoff = 10 * time.Second

// MessageHandler processes a consumed message. Return nil to commit the
// offset; an error redelivers the message per the handler retry settings.
type MessageHandler func(ctx context.Context, msg Message) error

// Message represents a consumed Kafka message.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	Time      time.Time
}

// Header represents a Kafka message header.
type Header struct {
	Key   string
	Value []byte
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a topic within a consumer group.
type Consumer struct {
	reader  messageReader
	config  *Config
	logger  *slog.Logger
	handler MessageHandler
	metrics *consumerMetrics
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	started atomic.Bool

	// fetchBackoff is the pause after a failed fetch.
	fetchBackoff time.Duration
}

type consumerMetrics struct {
	messagesConsumed atomic.Int64
	messagesDropped  atomic.Int64
	bytesConsumed    atomic.Int64
	errors           atomic.Int64
	lastOffset       atomic.Int64
	lastError        atomic.Value
	lastErrorTime    atomic.Value
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(config *Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("kafka: message handler is required")
	}

	dialer, err := config.GetDialer()
	if err != nil {
		return nil, err
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        config.ConsumerGroup,
		Topic:          config.Topic,
		Dialer:         dialer,
		MinBytes:       config.ConsumerMinBytes,
		MaxBytes:       config.ConsumerMaxBytes,
		MaxWait:        config.ConsumerMaxWait,
		CommitInterval: config.CommitInterval,
		StartOffset:    config.StartOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	logger.Info("kafka consumer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"group", config.ConsumerGroup,
	)

	return newConsumer(reader, config, handler, logger), nil
}

func newConsumer(r messageReader, config *Config, handler MessageHandler, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		reader:       r,
		config:       config,
		logger:       logger,
		handler:      handler,
		metrics:      &consumerMetrics{},
		ctx:          ctx,
		cancel:       cancel,
		fetchBackoff: time.Second,
	}
}

// StartAsync begins consuming messages in a goroutine. Use Stop to end
// consumption.
func (c *Consumer) StartAsync() error {
	if c.closed.Load() {
		return ErrConsumerClosed
	}
	if c.started.Swap(true) {
		return errors.New("kafka: consumer already started")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.consumeLoop(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("consumer loop exited with error", "error", err)
		}
	}()

	c.logger.Info("kafka consumer started",
		"topic", c.config.Topic,
		"group", c.config.ConsumerGroup,
	)
	return nil
}

func (c *Consumer) consumeLoop() error {
	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		kafkaMsg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
				return context.Canceled
			}
			c.recordError(err)
			c.logger.Error("failed to fetch message", "error", err, "topic", c.config.Topic)

			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.fetchBackoff):
				continue
			}
		}

		msg := Message{
			Topic:     kafkaMsg.Topic,
			Partition: kafkaMsg.Partition,
			Offset:    kafkaMsg.Offset,
			Key:       kafkaMsg.Key,
			Value:     kafkaMsg.Value,
			Time:      kafkaMsg.Time,
			Headers:   make([]Header, len(kafkaMsg.Headers)),
		}
		for i, h := range kafkaMsg.Headers {
			msg.Headers[i] = Header{Key: h.Key, Value: h.Value}
		}

		if err := c.deliver(msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(c.ctx, kafkaMsg); err != nil {
			c.logger.Error("failed to commit offset", "error", err, "offset", kafkaMsg.Offset)
		}

		c.metrics.messagesConsumed.Add(1)
		c.metrics.bytesConsumed.Add(int64(len(kafkaMsg.Value) + len(kafkaMsg.Key)))
		c.metrics.lastOffset.Store(kafkaMsg.Offset)
	}
}

// deliver hands msg to the handler until it succeeds or the retry budget is
// spent. Offsets are committed cumulatively, so a message is never skipped
// silently: it is either handled, or dropped and counted. The returned error
// is non-nil only when the consumer is stopping.
func (c *Consumer) deliver(msg Message) error {
	backoff := c.config.HandlerRetryBackoff
	for attempt := 0; ; attempt++ {
		err := c.processMessage(msg)
		if err == nil {
			return nil
		}
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		if limit := c.config.HandlerMaxRetries; limit >= 0 && attempt >= limit {
			c.metrics.messagesDropped.Add(1)
			c.logger.Error("dropping message after failed deliveries",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempts", attempt+1,
			)
			return nil
		}
		c.logger.Warn("message handler failed, retrying",
			"error", err,
			"offset", msg.Offset,
			"attempt", attempt+1,
		)
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxHandlerBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) processMessage(msg Message) error {
	timeout := c.config.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	if err := c.handler(ctx, msg); err != nil {
		c.recordError(err)
		return err
	}
	return nil
}

func (c *Consumer) recordError(err error) {
	c.metrics.errors.Add(1)
	c.metrics.lastError.Store(err)
	c.metrics.lastErrorTime.Store(time.Now())
}

// GetMetrics returns current consumer metrics.
func (c *Consumer) GetMetrics() Metrics {
	m := Metrics{
		MessagesConsumed: c.metrics.messagesConsumed.Load(),
		MessagesDropped:  c.metrics.messagesDropped.Load(),
		BytesConsumed:    c.metrics.bytesConsumed.Load(),
		Errors:           c.metrics.errors.Load(),
	}
	if err, ok := c.metrics.lastError.Load().(error); ok {
		m.LastError = err
	}
	if t, ok := c.metrics.lastErrorTime.Load().(time.Time); ok {
		m.LastErrorTime = t
	}
	return m
}

// Stop cancels consumption, waits for the loop to exit and closes the reader.
func (c *Consumer) Stop() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.logger.Info("stopping kafka consumer",
		"messages_consumed", c.metrics.messagesConsumed.Load(),
		"messages_dropped", c.metrics.messagesDropped.Load(),
		"errors", c.metrics.errors.Load(),
	)

	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer: %w", err)
	}
	return nil
}
