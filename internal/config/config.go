// Package config handles configuration loading for flock-sentinel.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"flock-sentinel/internal/catalog"
	"flock-sentinel/internal/cooldown"
	"flock-sentinel/internal/kafka"
	"flock-sentinel/internal/sink"
	"flock-sentinel/internal/store"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when SENTINEL_CONFIG is unset.
const DefaultPath = "configs/sentinel.yaml"

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Rules     RulesConfig     `yaml:"rules"`
	Store     StoreConfig     `yaml:"store"`
	Cooldown  CooldownConfig  `yaml:"cooldown"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
	Enabled      bool     `yaml:"enabled"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"` // Max requests per IP per window
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"` // Trust X-Forwarded-For header

	// ObservationsPerIP caps observations per client per window across
	// batches; zero disables the observation budget.
	ObservationsPerIP int `yaml:"observations_per_ip"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
	// PreciseLocation logs full-precision sensor coordinates.
	PreciseLocation bool `yaml:"precise_location"`
}

// EngineConfig holds detection engine settings.
type EngineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
	// DefaultCooldown applies to heuristic rules created through the API
	// without an explicit cooldown.
	DefaultCooldown    time.Duration `yaml:"default_cooldown"`
	DisabledCategories []string      `yaml:"disabled_categories"`
	LiteralDedupWindow time.Duration `yaml:"literal_dedup_window"`
}

// RulesConfig holds rule seeding settings.
type RulesConfig struct {
	// SeedDir holds YAML rule files loaded when the store is empty.
	SeedDir string `yaml:"seed_dir"`
}

// StoreConfig selects where custom rules and category toggles persist.
type StoreConfig struct {
	Driver       string               `yaml:"driver"` // none, file, postgres
	Path         string               `yaml:"path"`
	SyncDebounce time.Duration        `yaml:"sync_debounce"`
	Postgres     store.PostgresConfig `yaml:"postgres"`
}

// CooldownConfig selects the heuristic cooldown tracker.
type CooldownConfig struct {
	Backend string               `yaml:"backend"` // memory or redis
	Redis   cooldown.RedisConfig `yaml:"redis"`
}

// SinksConfig holds anomaly consumer settings.
type SinksConfig struct {
	Log        bool             `yaml:"log"`
	Kafka      KafkaSinkConfig  `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// KafkaSinkConfig publishes anomalies to a topic.
type KafkaSinkConfig struct {
	Enabled bool         `yaml:"enabled"`
	Kafka   kafka.Config `yaml:",inline"`
}

// ClickHouseConfig stores anomaly history.
type ClickHouseConfig struct {
	Enabled    bool                  `yaml:"enabled"`
	Connection sink.ClickHouseConfig `yaml:"connection"`
	Writer     sink.WriterConfig     `yaml:"writer"`
}

// IngestConfig holds observation intake settings.
type IngestConfig struct {
	MaxBatchSize   int               `yaml:"max_batch_size"`
	MaxPayloadSize int               `yaml:"max_payload_size"`
	Kafka          KafkaIngestConfig `yaml:"kafka"`
}

// KafkaIngestConfig consumes observations from a topic.
type KafkaIngestConfig struct {
	Enabled bool         `yaml:"enabled"`
	Kafka   kafka.Config `yaml:",inline"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	anomalyTopic := *kafka.DefaultConfig()
	observationTopic := *kafka.DefaultConfig()
	observationTopic.Topic = "sentinel-observations"

	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerIP:     1000,
			WindowSize:        time.Minute,
			BurstSize:         50,
			ObservationsPerIP: 50000,
			CleanupPeriod:     5 * time.Minute,
			ExemptPaths:       []string{"/health", "/metrics"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			Workers:         4,
			QueueSize:       10000,
			DefaultCooldown: time.Minute,
		},
		Rules: RulesConfig{
			SeedDir: "rules",
		},
		Store: StoreConfig{
			Driver:       "file",
			Path:         "data/rules.yaml",
			SyncDebounce: 500 * time.Millisecond,
			Postgres:     store.DefaultPostgresConfig(),
		},
		Cooldown: CooldownConfig{
			Backend: "memory",
			Redis:   cooldown.DefaultRedisConfig(),
		},
		Sinks: SinksConfig{
			Log:   true,
			Kafka: KafkaSinkConfig{Kafka: anomalyTopic},
			ClickHouse: ClickHouseConfig{
				Connection: sink.DefaultClickHouseConfig(),
				Writer:     sink.DefaultWriterConfig(),
			},
		},
		Ingest: IngestConfig{
			MaxBatchSize:   1000,
			MaxPayloadSize: 4 * 1024 * 1024,
			Kafka:          KafkaIngestConfig{Kafka: observationTopic},
		},
	}
}

// Load reads the file named by SENTINEL_CONFIG, or DefaultPath, and applies
// environment overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path := os.Getenv("SENTINEL_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SENTINEL_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.HTTPPort = p
		}
	}

	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if apiKey := os.Getenv("SENTINEL_API_KEY"); apiKey != "" {
		c.Auth.APIKeys = append(c.Auth.APIKeys, apiKey)
		c.Auth.Enabled = true
	}

	if enabled := os.Getenv("SENTINEL_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}

	// Rule store
	if driver := os.Getenv("SENTINEL_STORE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if path := os.Getenv("SENTINEL_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		c.Store.Postgres.Host = host
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		c.Store.Postgres.Password = pass
	}

	// Cooldown tracker
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cooldown.Redis.Addr = addr
		c.Cooldown.Backend = "redis"
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Cooldown.Redis.Password = pass
	}

	// Kafka brokers are shared by the anomaly sink and observation intake.
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		list := splitAndTrim(brokers, ",")
		c.Sinks.Kafka.Kafka.Brokers = list
		c.Ingest.Kafka.Kafka.Brokers = list
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Sinks.ClickHouse.Connection.Hosts = []string{host}
	}
	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Sinks.ClickHouse.Connection.Password = pass
	}
}

// splitAndTrim splits s by sep and drops empty parts.
func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	if c.Engine.Workers <= 0 {
		return errors.New("engine workers must be positive")
	}
	if c.Engine.QueueSize <= 0 {
		return errors.New("engine queue_size must be positive")
	}
	if c.Engine.DefaultCooldown < 0 {
		return errors.New("engine default_cooldown must not be negative")
	}
	for _, name := range c.Engine.DisabledCategories {
		if _, ok := catalog.LookupCategory(name); !ok {
			return fmt.Errorf("unknown category in disabled_categories: %q", name)
		}
	}

	switch c.Store.Driver {
	case "none":
	case "file":
		if c.Store.Path == "" {
			return errors.New("store path is required for the file driver")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" || c.Store.Postgres.Database == "" {
			return errors.New("postgres host and database are required")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	switch c.Cooldown.Backend {
	case "memory":
	case "redis":
		if c.Cooldown.Redis.Addr == "" {
			return errors.New("redis addr is required for the redis cooldown backend")
		}
	default:
		return fmt.Errorf("unknown cooldown backend: %q", c.Cooldown.Backend)
	}

	if c.Sinks.Kafka.Enabled {
		if err := c.Sinks.Kafka.Kafka.Validate(); err != nil {
			return fmt.Errorf("sinks.kafka: %w", err)
		}
	}
	if c.Sinks.ClickHouse.Enabled && len(c.Sinks.ClickHouse.Connection.Hosts) == 0 {
		return errors.New("sinks.clickhouse: at least one host is required")
	}
	if c.Ingest.Kafka.Enabled {
		if err := c.Ingest.Kafka.Kafka.Validate(); err != nil {
			return fmt.Errorf("ingest.kafka: %w", err)
		}
	}

	if c.Ingest.MaxBatchSize <= 0 {
		return errors.New("max_batch_size must be positive")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth enabled without api keys")
	}

	return nil
}
