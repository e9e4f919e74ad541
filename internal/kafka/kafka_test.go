package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Brokers) == 0 {
		t.Error("expected default brokers")
	}
	if cfg.Topic != "sentinel-anomalies" {
		t.Errorf("Topic = %q", cfg.Topic)
	}
	if cfg.ConsumerGroup == "" {
		t.Error("expected default consumer group")
	}
	if cfg.ProducerBatchSize < 1 {
		t.Error("expected batch size >= 1")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty brokers",
			modify:  func(c *Config) { c.Brokers = nil },
			wantErr: true,
		},
		{
			name:    "empty topic",
			modify:  func(c *Config) { c.Topic = "" },
			wantErr: true,
		},
		{
			name: "invalid partitions when creating topic",
			modify: func(c *Config) {
				c.CreateTopic = true
				c.Partitions = 0
			},
			wantErr: true,
		},
		{
			name:    "partitions ignored without topic creation",
			modify:  func(c *Config) { c.Partitions = 0 },
			wantErr: false,
		},
		{
			name:    "invalid security protocol",
			modify:  func(c *Config) { c.SecurityProtocol = "INVALID" },
			wantErr: true,
		},
		{
			name: "SASL without credentials",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "PLAIN"
			},
			wantErr: true,
		},
		{
			name: "valid SASL config",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "PLAIN"
				c.SASLUsername = "user"
				c.SASLPassword = "pass"
			},
			wantErr: false,
		},
		{
			name: "SCRAM-SHA-512",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_SSL"
				c.SASLMechanism = "SCRAM-SHA-512"
				c.SASLUsername = "user"
				c.SASLPassword = "pass"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetCompression(t *testing.T) {
	tests := []struct {
		compression string
		wantNonZero bool
	}{
		{"gzip", true},
		{"snappy", true},
		{"lz4", true},
		{"zstd", true},
		{"none", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CompressionType = tt.compression

			result := cfg.GetCompression()
			if tt.wantNonZero && result == 0 {
				t.Errorf("expected non-zero compression for %s", tt.compression)
			}
			if !tt.wantNonZero && result != 0 {
				t.Errorf("expected zero compression for %s", tt.compression)
			}
		})
	}
}

func TestGetDialer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityProtocol = "SASL_SSL"
	cfg.SASLMechanism = "SCRAM-SHA-256"
	cfg.SASLUsername = "user"
	cfg.SASLPassword = "pass"

	dialer, err := cfg.GetDialer()
	if err != nil {
		t.Fatalf("GetDialer() error = %v", err)
	}
	if dialer.Timeout != cfg.DialTimeout {
		t.Errorf("expected timeout %v, got %v", cfg.DialTimeout, dialer.Timeout)
	}
	if dialer.TLS == nil {
		t.Error("expected TLS config for SASL_SSL")
	}
	if dialer.SASLMechanism == nil {
		t.Error("expected SASL mechanism")
	}
}

func TestGetDialerMissingCA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLSEnabled = true
	cfg.TLSCAFile = "/nonexistent/ca.pem"

	if _, err := cfg.GetDialer(); err == nil {
		t.Error("expected error for missing CA file")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	mu     sync.Mutex
	fails  []error
	calls  int
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if len(w.fails) > 0 {
		err := w.fails[0]
		w.fails = w.fails[1:]
		return err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func retryConfig() *Config {
	cfg := DefaultConfig()
	cfg.ProducerRetryBackoff = time.Millisecond
	return cfg
}

func TestProducerRetries(t *testing.T) {
	w := &fakeWriter{fails: []error{errors.New("leader not available"), errors.New("timeout")}}
	p := newProducer(w, retryConfig(), testLogger())

	if err := p.ProduceJSON(context.Background(), "rule-1", map[string]int{"score": 90}); err != nil {
		t.Fatalf("ProduceJSON() error = %v", err)
	}
	if w.calls != 3 {
		t.Errorf("calls = %d, want 3", w.calls)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "rule-1" || string(w.msgs[0].Value) != `{"score":90}` {
		t.Errorf("messages = %+v", w.msgs)
	}

	m := p.GetMetrics()
	if m.MessagesProduced != 1 || m.Retries != 2 || m.Errors != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.LastError == nil {
		t.Error("expected last error to be recorded")
	}
}

func TestProducerGivesUp(t *testing.T) {
	cfg := retryConfig()
	cfg.ProducerMaxRetries = 1
	boom := errors.New("broker down")
	w := &fakeWriter{fails: []error{boom, boom, boom}}
	p := newProducer(w, cfg, testLogger())

	err := p.Produce(context.Background(), nil, []byte("x"))
	if !errors.Is(err, boom) {
		t.Fatalf("Produce() error = %v, want %v", err, boom)
	}
	if w.calls != 2 {
		t.Errorf("calls = %d, want 2", w.calls)
	}
}

func TestProducerNonRetryable(t *testing.T) {
	w := &fakeWriter{fails: []error{kafka.MessageSizeTooLarge}}
	p := newProducer(w, retryConfig(), testLogger())

	err := p.Produce(context.Background(), nil, []byte("x"))
	if !errors.Is(err, kafka.MessageSizeTooLarge) {
		t.Fatalf("Produce() error = %v", err)
	}
	if w.calls != 1 {
		t.Errorf("calls = %d, want 1", w.calls)
	}
}

func TestProduceJSONHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, retryConfig(), testLogger())

	if err := p.ProduceJSON(context.Background(), "rule-1", "x", StringHeader("severity", "HIGH")); err != nil {
		t.Fatal(err)
	}
	h := w.msgs[0].Headers
	if len(h) != 2 || h[0].Key != "content-type" || h[1].Key != "severity" || string(h[1].Value) != "HIGH" {
		t.Errorf("headers = %+v", h)
	}
}

func TestProducerClosed(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, DefaultConfig(), testLogger())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}

	err := p.Produce(context.Background(), []byte("key"), []byte("value"))
	if err != ErrProducerClosed {
		t.Errorf("expected ErrProducerClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func consumerConfig(maxRetries int) *Config {
	cfg := DefaultConfig()
	cfg.HandlerMaxRetries = maxRetries
	cfg.HandlerRetryBackoff = time.Millisecond
	return cfg
}

func waitConsumed(t *testing.T, c *Consumer, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.GetMetrics().MessagesConsumed < n {
		if time.Now().After(deadline) {
			t.Fatalf("consumed %d messages, want %d", c.GetMetrics().MessagesConsumed, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsumerRedeliversFailedMessage(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 3)}
	r.msgs <- kafka.Message{Offset: 1, Value: []byte("ok")}
	r.msgs <- kafka.Message{Offset: 2, Value: []byte("flaky")}
	r.msgs <- kafka.Message{Offset: 3, Value: []byte("ok")}

	var (
		mu       sync.Mutex
		attempts = map[int64]int{}
	)
	handler := func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Offset]++
		if string(msg.Value) == "flaky" && attempts[msg.Offset] < 3 {
			return errors.New("queue full")
		}
		return nil
	}

	c := newConsumer(r, consumerConfig(5), handler, testLogger())
	if err := c.StartAsync(); err != nil {
		t.Fatal(err)
	}
	waitConsumed(t, c, 3)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	got := r.commits()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("committed = %v, want [1 2 3]", got)
	}
	mu.Lock()
	if attempts[2] != 3 {
		t.Errorf("offset 2 delivered %d times, want 3", attempts[2])
	}
	mu.Unlock()
	m := c.GetMetrics()
	if m.Errors != 2 || m.MessagesDropped != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
}

func TestConsumerDropsAfterRetryBudget(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 2)}
	r.msgs <- kafka.Message{Offset: 7, Value: []byte("bad")}
	r.msgs <- kafka.Message{Offset: 8, Value: []byte("ok")}

	var calls atomic.Int64
	handler := func(_ context.Context, msg Message) error {
		if string(msg.Value) == "bad" {
			calls.Add(1)
			return errors.New("rejected")
		}
		return nil
	}

	c := newConsumer(r, consumerConfig(1), handler, testLogger())
	if err := c.StartAsync(); err != nil {
		t.Fatal(err)
	}
	waitConsumed(t, c, 2)
	c.Stop()

	if calls.Load() != 2 {
		t.Errorf("bad message delivered %d times, want 2", calls.Load())
	}
	got := r.commits()
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("committed = %v, want [7 8]", got)
	}
	if m := c.GetMetrics(); m.MessagesDropped != 1 {
		t.Errorf("dropped = %d, want 1", m.MessagesDropped)
	}
}

func TestConsumerStopDuringRedelivery(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 1)}
	r.msgs <- kafka.Message{Offset: 1, Value: []byte("stuck")}

	called := make(chan struct{}, 1)
	handler := func(context.Context, Message) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return errors.New("engine not running")
	}

	c := newConsumer(r, consumerConfig(-1), handler, testLogger())
	if err := c.StartAsync(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := r.commits(); len(got) != 0 {
		t.Errorf("committed = %v, want nothing", got)
	}
}

func TestConsumerStartTwice(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message)}
	c := newConsumer(r, DefaultConfig(), func(context.Context, Message) error { return nil }, testLogger())
	defer c.Stop()

	if err := c.StartAsync(); err != nil {
		t.Fatal(err)
	}
	if err := c.StartAsync(); err == nil {
		t.Error("expected error when starting twice")
	}
}

func TestNewConsumerRequiresHandler(t *testing.T) {
	if _, err := NewConsumer(DefaultConfig(), nil, testLogger()); err == nil {
		t.Error("expected error for nil handler")
	}
}

// Integration tests - skipped if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	t.Helper()
	if os.Getenv("KAFKA_BROKERS") == "" {
		t.Skip("KAFKA_BROKERS not set, skipping integration test")
	}
}

func TestAdminIntegration(t *testing.T) {
	skipIfNoKafka(t)

	cfg := DefaultConfig()
	cfg.Brokers = []string{os.Getenv("KAFKA_BROKERS")}
	cfg.Topic = "sentinel-test-" + time.Now().Format("20060102150405")

	admin, err := NewAdmin(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewAdmin() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := admin.EnsureTopic(ctx, TopicConfigFromConfig(cfg)); err != nil {
		t.Fatalf("EnsureTopic() error = %v", err)
	}
	topics, err := admin.ListTopics(ctx)
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	found := false
	for _, name := range topics {
		found = found || name == cfg.Topic
	}
	if !found {
		t.Errorf("topic %s not listed", cfg.Topic)
	}
}

func TestProducerIntegration(t *testing.T) {
	skipIfNoKafka(t)

	cfg := DefaultConfig()
	cfg.Brokers = []string{os.Getenv("KAFKA_BROKERS")}
	cfg.Topic = "sentinel-test-" + time.Now().Format("20060102150405")

	producer, err := NewProducer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewProducer() error = %v", err)
	}
	defer producer.Close()

	if err := producer.Produce(context.Background(), []byte("key"), []byte("value")); err != nil {
		t.Errorf("Produce() error = %v", err)
	}
}
