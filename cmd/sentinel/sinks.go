package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flock-sentinel/internal/config"
	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/kafka"
	"flock-sentinel/internal/sink"
)

// setupSinks registers the configured anomaly consumers with the engine.
func setupSinks(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger) ([]closer, error) {
	var closers []closer

	if cfg.Sinks.Log {
		eng.OnAnomaly(sink.NewLogSink(logger).Handle)
	}

	if cfg.Sinks.Kafka.Enabled {
		kcfg := &cfg.Sinks.Kafka.Kafka
		if kcfg.CreateTopic {
			admin, err := kafka.NewAdmin(kcfg, logger)
			if err != nil {
				return closers, err
			}
			ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = admin.EnsureTopic(ensureCtx, kafka.TopicConfigFromConfig(kcfg))
			cancel()
			if err != nil {
				return closers, fmt.Errorf("failed to ensure anomaly topic: %w", err)
			}
		}

		producer, err := kafka.NewProducer(kcfg, logger)
		if err != nil {
			return closers, fmt.Errorf("failed to create anomaly producer: %w", err)
		}
		ks := sink.NewKafkaSink(producer)
		eng.OnAnomaly(ks.Handle)
		closers = append(closers, closer{"kafka sink", func() error {
			m := producer.GetMetrics()
			slog.Info("kafka sink metrics",
				"messages_produced", m.MessagesProduced,
				"errors", m.Errors,
			)
			return ks.Close()
		}})
		slog.Info("publishing anomalies", "topic", kcfg.Topic)
	}

	if cfg.Sinks.ClickHouse.Enabled {
		ch := cfg.Sinks.ClickHouse
		slog.Info("initializing ClickHouse anomaly history",
			"hosts", ch.Connection.Hosts,
			"database", ch.Connection.Database,
		)

		client, err := sink.NewClickHouseClient(ctx, ch.Connection)
		if err != nil {
			return closers, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		closers = append(closers, closer{"clickhouse", client.Close})

		if err := client.Migrate(ctx); err != nil {
			return closers, fmt.Errorf("failed to run migrations: %w", err)
		}

		writer := sink.NewAnomalyWriter(client, ch.Writer)
		eng.OnAnomaly(writer.Handle)
		closers = append(closers, closer{"anomaly writer", func() error {
			err := writer.Close()
			m := writer.Metrics()
			slog.Info("anomaly writer metrics",
				"written", m.Written,
				"failed", m.Failed,
				"batches", m.Batches,
			)
			return err
		}})
	}

	return closers, nil
}
