package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// Admin provides topic management against the configured cluster.
type Admin struct {
	config *Config
	logger *slog.Logger
}

// NewAdmin creates a new Kafka admin client.
func NewAdmin(config *Config, logger *slog.Logger) (*Admin, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Admin{config: config, logger: logger}, nil
}

// TopicConfig defines configuration for topic creation.
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
}

// TopicConfigFromConfig derives topic creation settings from c.
func TopicConfigFromConfig(c *Config) TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		Partitions:        c.Partitions,
		ReplicationFactor: c.ReplicationFactor,
		RetentionMs:       c.RetentionMs,
	}
}

func (a *Admin) dial(ctx context.Context) (*kafka.Conn, *kafka.Dialer, error) {
	dialer, err := a.config.GetDialer()
	if err != nil {
		return nil, nil, fmt.Errorf("kafka: failed to create dialer: %w", err)
	}
	conn, err := dialer.DialContext(ctx, "tcp", a.config.Brokers[0])
	if err != nil {
		return nil, nil, fmt.Errorf("kafka: failed to connect to broker: %w", err)
	}
	return conn, dialer, nil
}

// CreateTopic creates a new Kafka topic through the cluster controller.
func (a *Admin) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	conn, dialer, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: failed to get controller: %w", err)
	}

	controllerConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	var entries []kafka.ConfigEntry
	if cfg.RetentionMs > 0 {
		entries = append(entries, kafka.ConfigEntry{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(cfg.RetentionMs, 10),
		})
	}

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		ConfigEntries:     entries,
	})
	if err != nil {
		return fmt.Errorf("kafka: failed to create topic %s: %w", cfg.Name, err)
	}

	a.logger.Info("kafka topic created",
		"topic", cfg.Name,
		"partitions", cfg.Partitions,
		"replication_factor", cfg.ReplicationFactor,
	)
	return nil
}

// ListTopics returns the names of all topics in the cluster.
func (a *Admin) ListTopics(ctx context.Context) ([]string, error) {
	conn, _, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to read partitions: %w", err)
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

// EnsureTopic creates a topic if it doesn't exist.
func (a *Admin) EnsureTopic(ctx context.Context, cfg TopicConfig) error {
	topics, err := a.ListTopics(ctx)
	if err != nil {
		return err
	}
	for _, t := range topics {
		if t == cfg.Name {
			a.logger.Debug("topic already exists", "topic", cfg.Name)
			return nil
		}
	}
	return a.CreateTopic(ctx, cfg)
}
