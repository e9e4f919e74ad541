// Package main is the entry point for the surveillance detection service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flock-sentinel/internal/api"
	"flock-sentinel/internal/config"
	"flock-sentinel/internal/cooldown"
	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/ingest"
	"flock-sentinel/internal/kafka"
	"flock-sentinel/internal/logging"
	"flock-sentinel/internal/metrics"
	"flock-sentinel/internal/store"
)

// closer is a shutdown step run in reverse registration order.
type closer struct {
	name string
	fn   func() error
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, logging.Options{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		PreciseLocation: cfg.Logging.PreciseLocation,
	})
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"workers", cfg.Engine.Workers,
		"queue_size", cfg.Engine.QueueSize,
		"store", cfg.Store.Driver,
		"cooldown_backend", cfg.Cooldown.Backend,
		"auth_enabled", cfg.Auth.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		slog.Error("sentinel failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				slog.Error("shutdown step failed", "component", closers[i].name, "error", err)
			}
		}
	}()

	collector := metrics.New()

	tracker, err := newTracker(cfg)
	if err != nil {
		return err
	}
	if c, ok := tracker.(interface{ Close() error }); ok {
		closers = append(closers, closer{"cooldown tracker", c.Close})
	}

	eng, err := engine.New(engine.Config{
		WorkerCount:        cfg.Engine.Workers,
		QueueSize:          cfg.Engine.QueueSize,
		DisabledCategories: cfg.Engine.DisabledCategories,
		LiteralDedupWindow: cfg.Engine.LiteralDedupWindow,
	},
		engine.WithTracker(tracker),
		engine.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	syncer, storeClose, err := setupStore(ctx, cfg, eng)
	if storeClose != nil {
		closers = append(closers, closer{"rule store", storeClose})
	}
	if err != nil {
		return err
	}

	sinkClosers, err := setupSinks(ctx, cfg, eng, logger)
	if err != nil {
		return err
	}
	closers = append(closers, sinkClosers...)

	// Engine stops before sinks close so queued anomalies are delivered.
	eng.Start(ctx)
	closers = append(closers, closer{"engine", func() error { eng.Stop(); return nil }})

	syncDone := make(chan struct{})
	syncCtx, syncCancel := context.WithCancel(context.Background())
	if syncer != nil {
		go func() {
			defer close(syncDone)
			syncer.Run(syncCtx)
		}()
	} else {
		close(syncDone)
	}
	closers = append(closers, closer{"rule syncer", func() error {
		syncCancel()
		<-syncDone
		return nil
	}})

	if cfg.Ingest.Kafka.Enabled {
		consumer, err := setupKafkaIngest(ctx, cfg, eng, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"kafka ingest", consumer.Stop})
	}

	intake := ingest.NewHandler(eng).
		WithMaxPayload(cfg.Ingest.MaxPayloadSize).
		WithMaxBatch(cfg.Ingest.MaxBatchSize)

	var limiter *ingest.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ingest.NewRateLimiter(cfg.RateLimit)
		defer limiter.Stop()
		if cfg.RateLimit.ObservationsPerIP > 0 {
			budget := ingest.NewObservationLimiter(cfg.RateLimit)
			defer budget.Stop()
			intake.WithObservationBudget(budget, cfg.RateLimit.TrustProxy)
		}
	}

	mux := http.NewServeMux()
	intake.Register(mux)
	api.NewRuleAPI(eng, cfg.Engine.DefaultCooldown).RegisterRoutes(mux)
	mux.Handle("GET /metrics", collector.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      ingest.WithMiddleware(mux, cfg, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting sentinel server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if syncer != nil {
		saves, lastErr := syncer.Stats()
		slog.Info("rule store metrics", "saves", saves, "last_error", lastErr)
	}
	slog.Info("shutdown complete")
	return nil
}

func newTracker(cfg *config.Config) (cooldown.Tracker, error) {
	if cfg.Cooldown.Backend != "redis" {
		return cooldown.NewMemoryTracker(), nil
	}
	slog.Info("using redis cooldown tracker", "addr", cfg.Cooldown.Redis.Addr)
	t, err := cooldown.NewRedisTracker(cfg.Cooldown.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return t, nil
}

// setupStore loads the persisted rule state into the engine, seeding it from
// the rules directory on first start, and returns a syncer that writes later
// changes back.
func setupStore(ctx context.Context, cfg *config.Config, eng *engine.Engine) (*store.Syncer, func() error, error) {
	var (
		st      store.Store
		closeFn func() error
	)
	switch cfg.Store.Driver {
	case "none":
		seed, err := store.LoadDir(cfg.Rules.SeedDir)
		if err != nil {
			return nil, nil, err
		}
		if err := eng.LoadRuleSet(seed); err != nil {
			return nil, nil, fmt.Errorf("failed to load seed rules: %w", err)
		}
		return nil, nil, nil
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		st, closeFn = pg, pg.Close
	default:
		st = store.NewFileStore(cfg.Store.Path)
	}

	syncer := store.NewSyncer(st, eng, cfg.Store.SyncDebounce)

	rs, err := st.Load(ctx)
	switch {
	case err == nil:
		slog.Info("loaded persisted rules", "custom", len(rs.Literal), "heuristic", len(rs.Heuristic))
	case store.IsNotFound(err):
		rs, err = store.LoadDir(cfg.Rules.SeedDir)
		if err != nil {
			return nil, closeFn, err
		}
		slog.Info("seeding rules", "dir", cfg.Rules.SeedDir, "custom", len(rs.Literal), "heuristic", len(rs.Heuristic))
	default:
		return nil, closeFn, fmt.Errorf("failed to load rules: %w", err)
	}

	if err := eng.LoadRuleSet(rs); err != nil {
		return nil, closeFn, fmt.Errorf("failed to apply rules: %w", err)
	}
	eng.OnChange(syncer.Listener())
	syncer.Trigger()
	return syncer, closeFn, nil
}

func setupKafkaIngest(ctx context.Context, cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*kafka.Consumer, error) {
	kcfg := &cfg.Ingest.Kafka.Kafka
	if kcfg.CreateTopic {
		admin, err := kafka.NewAdmin(kcfg, logger)
		if err != nil {
			return nil, err
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = admin.EnsureTopic(ensureCtx, kafka.TopicConfigFromConfig(kcfg))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to ensure observation topic: %w", err)
		}
	}

	handler := ingest.NewKafkaHandler(eng, logger)
	consumer, err := kafka.NewConsumer(kcfg, handler.Handle, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create observation consumer: %w", err)
	}
	if err := consumer.StartAsync(); err != nil {
		return nil, err
	}
	slog.Info("consuming observations", "topic", kcfg.Topic, "group", kcfg.ConsumerGroup)
	return consumer, nil
}
