package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected HTTPPort 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Engine.Workers != 4 || cfg.Engine.QueueSize != 10000 {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Engine.DefaultCooldown != time.Minute {
		t.Errorf("expected DefaultCooldown 1m, got %v", cfg.Engine.DefaultCooldown)
	}
	if cfg.Store.Driver != "file" || cfg.Cooldown.Backend != "memory" {
		t.Errorf("store=%q cooldown=%q", cfg.Store.Driver, cfg.Cooldown.Backend)
	}
	if cfg.Sinks.Kafka.Kafka.Topic != "sentinel-anomalies" {
		t.Errorf("anomaly topic = %q", cfg.Sinks.Kafka.Kafka.Topic)
	}
	if cfg.Ingest.Kafka.Kafka.Topic != "sentinel-observations" {
		t.Errorf("observation topic = %q", cfg.Ingest.Kafka.Kafka.Topic)
	}
	if cfg.Sinks.Kafka.Enabled || cfg.Sinks.ClickHouse.Enabled || cfg.Ingest.Kafka.Enabled {
		t.Error("external sinks and intake should be disabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "port zero", modify: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: "http_port"},
		{name: "port too large", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "http_port"},
		{name: "bad log level", modify: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging level"},
		{name: "no workers", modify: func(c *Config) { c.Engine.Workers = 0 }, wantErr: "workers"},
		{name: "no queue", modify: func(c *Config) { c.Engine.QueueSize = 0 }, wantErr: "queue_size"},
		{name: "negative cooldown", modify: func(c *Config) { c.Engine.DefaultCooldown = -time.Second }, wantErr: "default_cooldown"},
		{
			name:    "unknown disabled category",
			modify:  func(c *Config) { c.Engine.DisabledCategories = []string{"toasters"} },
			wantErr: "toasters",
		},
		{
			name:   "known disabled category",
			modify: func(c *Config) { c.Engine.DisabledCategories = []string{"flock-alpr"} },
		},
		{name: "file store without path", modify: func(c *Config) { c.Store.Path = "" }, wantErr: "store path"},
		{name: "no store", modify: func(c *Config) { c.Store.Driver = "none"; c.Store.Path = "" }},
		{name: "unknown store", modify: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "store driver"},
		{
			name:    "postgres without host",
			modify:  func(c *Config) { c.Store.Driver = "postgres"; c.Store.Postgres.Host = "" },
			wantErr: "postgres",
		},
		{
			name:    "redis without addr",
			modify:  func(c *Config) { c.Cooldown.Backend = "redis"; c.Cooldown.Redis.Addr = "" },
			wantErr: "redis addr",
		},
		{name: "unknown cooldown", modify: func(c *Config) { c.Cooldown.Backend = "etcd" }, wantErr: "cooldown backend"},
		{
			name:    "kafka sink without topic",
			modify:  func(c *Config) { c.Sinks.Kafka.Enabled = true; c.Sinks.Kafka.Kafka.Topic = "" },
			wantErr: "sinks.kafka",
		},
		{
			name:    "kafka ingest without brokers",
			modify:  func(c *Config) { c.Ingest.Kafka.Enabled = true; c.Ingest.Kafka.Kafka.Brokers = nil },
			wantErr: "ingest.kafka",
		},
		{
			name:    "clickhouse without hosts",
			modify:  func(c *Config) { c.Sinks.ClickHouse.Enabled = true; c.Sinks.ClickHouse.Connection.Hosts = nil },
			wantErr: "clickhouse",
		},
		{name: "auth without keys", modify: func(c *Config) { c.Auth.Enabled = true }, wantErr: "api keys"},
		{name: "zero batch", modify: func(c *Config) { c.Ingest.MaxBatchSize = 0 }, wantErr: "max_batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	data := `
server:
  http_port: 9090
engine:
  workers: 2
  default_cooldown: 90s
  disabled_categories: [ultrasonic-beacons]
store:
  driver: postgres
  postgres:
    host: db.internal
    database: rules
cooldown:
  backend: redis
  redis:
    addr: cache:6379
sinks:
  kafka:
    enabled: true
    brokers: [k1:9092, k2:9092]
    topic: alerts
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9090 || cfg.Engine.Workers != 2 || cfg.Engine.DefaultCooldown != 90*time.Second {
		t.Errorf("unexpected values: server=%+v engine=%+v", cfg.Server, cfg.Engine)
	}
	if cfg.Engine.QueueSize != 10000 {
		t.Errorf("unset fields should keep defaults, QueueSize = %d", cfg.Engine.QueueSize)
	}
	if cfg.Store.Postgres.Host != "db.internal" || cfg.Store.Postgres.Port != 5432 {
		t.Errorf("postgres = %+v", cfg.Store.Postgres)
	}
	if got := cfg.Sinks.Kafka.Kafka; !cfg.Sinks.Kafka.Enabled || got.Topic != "alerts" || len(got.Brokers) != 2 {
		t.Errorf("kafka sink = %+v", cfg.Sinks.Kafka)
	}
	if cfg.Sinks.Kafka.Kafka.CompressionType != "snappy" {
		t.Errorf("inline kafka defaults lost: %q", cfg.Sinks.Kafka.Kafka.CompressionType)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected defaults, got port %d", cfg.Server.HTTPPort)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 7070\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTINEL_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d, want 7070", cfg.Server.HTTPPort)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("HTTP port override", func(t *testing.T) {
		t.Setenv("SENTINEL_HTTP_PORT", "9000")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if cfg.Server.HTTPPort != 9000 {
			t.Errorf("expected HTTPPort 9000, got %d", cfg.Server.HTTPPort)
		}
	})

	t.Run("invalid port ignored", func(t *testing.T) {
		t.Setenv("SENTINEL_HTTP_PORT", "eighty")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if cfg.Server.HTTPPort != 8080 {
			t.Errorf("expected HTTPPort 8080, got %d", cfg.Server.HTTPPort)
		}
	})

	t.Run("API key override", func(t *testing.T) {
		t.Setenv("SENTINEL_API_KEY", "test-key-123")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "test-key-123" {
			t.Errorf("auth = %+v", cfg.Auth)
		}
	})

	t.Run("redis address selects redis backend", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "redis:6379")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if cfg.Cooldown.Backend != "redis" || cfg.Cooldown.Redis.Addr != "redis:6379" {
			t.Errorf("cooldown = %+v", cfg.Cooldown)
		}
	})

	t.Run("kafka brokers shared", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", " a:9092, b:9092 ,")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		want := []string{"a:9092", "b:9092"}
		for _, got := range [][]string{cfg.Sinks.Kafka.Kafka.Brokers, cfg.Ingest.Kafka.Kafka.Brokers} {
			if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
				t.Errorf("brokers = %v, want %v", got, want)
			}
		}
	})

	t.Run("rate limit disabled", func(t *testing.T) {
		t.Setenv("SENTINEL_RATELIMIT_ENABLED", "false")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if cfg.RateLimit.Enabled {
			t.Error("expected RateLimit.Enabled to be false")
		}
	})
}
