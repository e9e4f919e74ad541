package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"flock-sentinel/internal/engine"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("sink: anomaly writer is closed")

// WriterConfig holds configuration for the anomaly batch writer.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultWriterConfig returns the default batch writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// AnomalyWriter buffers anomalies and inserts them into ClickHouse in
// batches, on size or on a timer.
type AnomalyWriter struct {
	client *ClickHouseClient
	config WriterConfig

	mu     sync.Mutex
	buffer []*engine.Anomaly
	closed bool

	// sendMu serializes inserts so batches land in emission order.
	sendMu     sync.Mutex
	flushTimer *time.Timer

	totalWritten atomic.Uint64
	totalFailed  atomic.Uint64
	batchCount   atomic.Uint64
}

// NewAnomalyWriter creates a writer and starts its flush timer.
func NewAnomalyWriter(client *ClickHouseClient, cfg WriterConfig) *AnomalyWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	w := &AnomalyWriter{
		client: client,
		config: cfg,
		buffer: make([]*engine.Anomaly, 0, cfg.BatchSize),
	}
	w.flushTimer = time.AfterFunc(cfg.FlushInterval, w.timerFlush)
	return w
}

// Handle buffers an anomaly. It satisfies engine.AnomalyHandler.
func (w *AnomalyWriter) Handle(_ context.Context, a *engine.Anomaly) error {
	return w.Write(a)
}

// Write adds an anomaly to the batch, flushing when the batch is full.
func (w *AnomalyWriter) Write(a *engine.Anomaly) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.buffer = append(w.buffer, a)
	var batch []*engine.Anomaly
	if len(w.buffer) >= w.config.BatchSize {
		batch = w.takeLocked()
	}
	w.mu.Unlock()

	if batch != nil {
		return w.send(batch)
	}
	return nil
}

func (w *AnomalyWriter) takeLocked() []*engine.Anomaly {
	if len(w.buffer) == 0 {
		return nil
	}
	batch := w.buffer
	w.buffer = make([]*engine.Anomaly, 0, w.config.BatchSize)
	return batch
}

func (w *AnomalyWriter) timerFlush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	batch := w.takeLocked()
	w.mu.Unlock()

	if batch != nil {
		if err := w.send(batch); err != nil {
			slog.Error("timer flush failed", "error", err)
		}
	}
	w.flushTimer.Reset(w.config.FlushInterval)
}

func (w *AnomalyWriter) send(batch []*engine.Anomaly) error {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.config.RetryDelay * time.Duration(attempt))
		}
		if err := w.insertBatch(batch); err != nil {
			lastErr = err
			slog.Warn("anomaly batch insert failed",
				"attempt", attempt+1,
				"max_retries", w.config.MaxRetries,
				"error", err,
			)
			continue
		}
		w.totalWritten.Add(uint64(len(batch)))
		w.batchCount.Add(1)
		return nil
	}

	w.totalFailed.Add(uint64(len(batch)))
	return fmt.Errorf("anomaly batch insert failed after %d retries: %w", w.config.MaxRetries, lastErr)
}

func (w *AnomalyWriter) insertBatch(anomalies []*engine.Anomaly) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := w.client.conn.PrepareBatch(ctx, `
		INSERT INTO anomalies (
			id, timestamp, domain, rule_id, rule_name, rule_kind,
			classification, severity, confidence, threat_score,
			description, details, manufacturer, observation_id,
			latitude, longitude
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, a := range anomalies {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details for %s: %w", a.ID, err)
		}
		var lat, lon *float64
		if a.Location != nil {
			lat, lon = &a.Location.Latitude, &a.Location.Longitude
		}

		err = batch.Append(
			a.ID,
			a.Timestamp,
			string(a.Domain),
			a.RuleID,
			a.RuleName,
			string(a.RuleKind),
			a.Classification,
			string(a.Severity),
			string(a.Confidence),
			uint8(a.ThreatScore),
			a.Description,
			string(details),
			a.Manufacturer,
			a.ObservationID,
			lat,
			lon,
		)
		if err != nil {
			return fmt.Errorf("failed to append anomaly: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	slog.Debug("anomaly batch inserted", "count", len(anomalies))
	return nil
}

// Flush inserts any buffered anomalies now.
func (w *AnomalyWriter) Flush() error {
	w.mu.Lock()
	batch := w.takeLocked()
	w.mu.Unlock()

	if batch == nil {
		return nil
	}
	return w.send(batch)
}

// Close stops the timer and flushes the remaining buffer.
func (w *AnomalyWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.flushTimer.Stop()
	return w.Flush()
}

// WriterMetrics holds batch writer statistics.
type WriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}

// Metrics returns batch writer statistics.
func (w *AnomalyWriter) Metrics() WriterMetrics {
	w.mu.Lock()
	pending := len(w.buffer)
	w.mu.Unlock()

	return WriterMetrics{
		Written: w.totalWritten.Load(),
		Failed:  w.totalFailed.Load(),
		Batches: w.batchCount.Load(),
		Pending: pending,
	}
}
