// Package kafka provides the Kafka producer used to publish anomalies and
// the consumer used to receive observations from acquisition subsystems.
package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config holds Kafka connection and behavior configuration.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `json:"brokers" yaml:"brokers"`

	// Topic is the topic produced to or consumed from.
	Topic string `json:"topic" yaml:"topic"`

	// ConsumerGroup is the consumer group ID.
	ConsumerGroup string `json:"consumer_group" yaml:"consumer_group"`

	// Topic creation settings used by EnsureTopic.
	CreateTopic       bool  `json:"create_topic" yaml:"create_topic"`
	Partitions        int   `json:"partitions" yaml:"partitions"`
	ReplicationFactor int   `json:"replication_factor" yaml:"replication_factor"`
	RetentionMs       int64 `json:"retention_ms" yaml:"retention_ms"`

	// CompressionType: none, gzip, snappy, lz4, zstd.
	CompressionType string `json:"compression_type" yaml:"compression_type"`

	// SecurityProtocol: PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL.
	SecurityProtocol string `json:"security_protocol" yaml:"security_protocol"`

	// SASLMechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512.
	SASLMechanism string `json:"sasl_mechanism,omitempty" yaml:"sasl_mechanism,omitempty"`
	SASLUsername  string `json:"sasl_username,omitempty" yaml:"sasl_username,omitempty"`
	SASLPassword  string `json:"sasl_password,omitempty" yaml:"sasl_password,omitempty"`

	// TLS configuration
	TLSEnabled    bool   `json:"tls_enabled" yaml:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile    string `json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`
	TLSCAFile     string `json:"tls_ca_file,omitempty" yaml:"tls_ca_file,omitempty"`
	TLSSkipVerify bool   `json:"tls_skip_verify,omitempty" yaml:"tls_skip_verify,omitempty"`

	// Producer settings
	ProducerBatchSize    int           `json:"producer_batch_size" yaml:"producer_batch_size"`
	ProducerBatchTimeout time.Duration `json:"producer_batch_timeout" yaml:"producer_batch_timeout"`
	ProducerMaxRetries   int           `json:"producer_max_retries" yaml:"producer_max_retries"`
	ProducerRetryBackoff time.Duration `json:"producer_retry_backoff" yaml:"producer_retry_backoff"`
	RequiredAcks         int           `json:"required_acks" yaml:"required_acks"` // -1=all, 0=none, 1=leader

	// Consumer settings
	ConsumerMinBytes int           `json:"consumer_min_bytes" yaml:"consumer_min_bytes"`
	ConsumerMaxBytes int           `json:"consumer_max_bytes" yaml:"consumer_max_bytes"`
	ConsumerMaxWait  time.Duration `json:"consumer_max_wait" yaml:"consumer_max_wait"`
	CommitInterval   time.Duration `json:"commit_interval" yaml:"commit_interval"`
	StartOffset      int64         `json:"start_offset" yaml:"start_offset"` // -1=latest, -2=earliest
	HandlerTimeout   time.Duration `json:"handler_timeout" yaml:"handler_timeout"`
	// HandlerMaxRetries bounds redeliveries of a message whose handler
	// failed; a negative value retries until the consumer stops.
	HandlerMaxRetries   int           `json:"handler_max_retries" yaml:"handler_max_retries"`
	HandlerRetryBackoff time.Duration `json:"handler_retry_backoff" yaml:"handler_retry_backoff"`

	// Connection settings
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Brokers:              []string{"localhost:9092"},
		Topic:                "sentinel-anomalies",
		ConsumerGroup:        "sentinel",
		Partitions:           3,
		ReplicationFactor:    1,
		RetentionMs:          30 * 24 * 60 * 60 * 1000, // 30 days
		CompressionType:      "snappy",
		SecurityProtocol:     "PLAINTEXT",
		ProducerBatchSize:    100,
		ProducerBatchTimeout: 10 * time.Millisecond,
		ProducerMaxRetries:   3,
		ProducerRetryBackoff: 100 * time.Millisecond,
		RequiredAcks:         -1,
		ConsumerMinBytes:     1,
		ConsumerMaxBytes:     10 * 1024 * 1024, // 10MB
		ConsumerMaxWait:      500 * time.Millisecond,
		CommitInterval:       time.Second,
		StartOffset:          kafka.LastOffset,
		HandlerTimeout:       10 * time.Second,
		HandlerMaxRetries:    5,
		HandlerRetryBackoff:  500 * time.Millisecond,
		DialTimeout:          10 * time.Second,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.CreateTopic {
		if c.Partitions < 1 {
			return errors.New("kafka: partitions must be at least 1")
		}
		if c.ReplicationFactor < 1 {
			return errors.New("kafka: replication factor must be at least 1")
		}
	}

	validProtocols := map[string]bool{
		"PLAINTEXT": true, "SSL": true, "SASL_PLAINTEXT": true, "SASL_SSL": true,
	}
	if !validProtocols[c.SecurityProtocol] {
		return fmt.Errorf("kafka: invalid security protocol: %s", c.SecurityProtocol)
	}

	if c.usesSASL() {
		validMechanisms := map[string]bool{
			"PLAIN": true, "SCRAM-SHA-256": true, "SCRAM-SHA-512": true,
		}
		if !validMechanisms[c.SASLMechanism] {
			return fmt.Errorf("kafka: invalid SASL mechanism: %s", c.SASLMechanism)
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return errors.New("kafka: SASL username and password required for SASL authentication")
		}
	}

	return nil
}

func (c *Config) usesSASL() bool {
	return c.SecurityProtocol == "SASL_PLAINTEXT" || c.SecurityProtocol == "SASL_SSL"
}

// GetCompression returns the kafka-go compression codec.
func (c *Config) GetCompression() kafka.Compression {
	switch c.CompressionType {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// GetDialer returns a configured kafka.Dialer with TLS and SASL if configured.
func (c *Config) GetDialer() (*kafka.Dialer, error) {
	dialer := &kafka.Dialer{
		Timeout:   c.DialTimeout,
		DualStack: true,
	}

	if c.TLSEnabled || c.SecurityProtocol == "SSL" || c.SecurityProtocol == "SASL_SSL" {
		tlsConfig, err := c.getTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("kafka: failed to configure TLS: %w", err)
		}
		dialer.TLS = tlsConfig
	}

	if c.usesSASL() {
		mechanism, err := c.getSASLMechanism()
		if err != nil {
			return nil, fmt.Errorf("kafka: failed to configure SASL: %w", err)
		}
		dialer.SASLMechanism = mechanism
	}

	return dialer, nil
}

func (c *Config) getTLSConfig() (*tls.Config, error) {
	if c.TLSSkipVerify {
		slog.Warn("TLS certificate verification is disabled for Kafka")
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.TLSSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if c.TLSCAFile != "" {
		caCert, err := os.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func (c *Config) getSASLMechanism() (sasl.Mechanism, error) {
	switch c.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{
			Username: c.SASLUsername,
			Password: c.SASLPassword,
		}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", c.SASLMechanism)
	}
}

// Metrics holds Kafka producer/consumer counters.
type Metrics struct {
	MessagesProduced int64
	BytesProduced    int64
	MessagesConsumed int64
	MessagesDropped  int64
	BytesConsumed    int64
	Errors           int64
	Retries          int64
	LastError        error
	LastErrorTime    time.Time
}

// Common errors
var (
	ErrProducerClosed = errors.New("kafka: producer is closed")
	ErrConsumerClosed = errors.New("kafka: consumer is closed")
)
