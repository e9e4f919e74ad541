package sink

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ClickHouseConfig holds the configuration for the anomaly warehouse.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	Debug           bool          `yaml:"debug"`
}

// DefaultClickHouseConfig returns the default ClickHouse configuration.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Hosts:           []string{"localhost:9000"},
		Database:        "sentinel",
		Username:        "default",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		DialTimeout:     10 * time.Second,
	}
}

// ClickHouseClient wraps the ClickHouse connection.
type ClickHouseClient struct {
	conn   driver.Conn
	config ClickHouseConfig
}

// NewClickHouseClient opens and pings a ClickHouse connection.
func NewClickHouseClient(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseClient, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Debug:           cfg.Debug,
	}
	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}

	return NewClickHouseClientWithConn(conn, cfg), nil
}

// NewClickHouseClientWithConn wraps an existing connection.
func NewClickHouseClientWithConn(conn driver.Conn, cfg ClickHouseConfig) *ClickHouseClient {
	return &ClickHouseClient{conn: conn, config: cfg}
}

// Close closes the ClickHouse connection.
func (c *ClickHouseClient) Close() error {
	return c.conn.Close()
}

// Ping checks if the connection is alive.
func (c *ClickHouseClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Migration is one embedded schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type appliedMigration struct {
	Version uint32 `ch:"version"`
}

// Migrate applies pending embedded migrations in version order.
func (c *ClickHouseClient) Migrate(ctx context.Context) error {
	err := c.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version UInt32,
			name String,
			applied_at DateTime DEFAULT now()
		)
		ENGINE = MergeTree()
		ORDER BY version
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var rows []appliedMigration
	if err := c.conn.Select(ctx, &rows, "SELECT version FROM schema_migrations"); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied := make(map[int]bool, len(rows))
	for _, r := range rows {
		applied[int(r.Version)] = true
	}

	for _, m := range migrations {
		if applied[m.Version] {
			slog.Debug("migration already applied", "version", m.Version, "name", m.Name)
			continue
		}

		slog.Info("applying migration", "version", m.Version, "name", m.Name)
		for _, stmt := range splitStatements(m.SQL) {
			if err := c.conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		err := c.conn.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			uint32(m.Version), m.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// 001_create_anomalies.sql
		var version int
		var name string
		if _, err := fmt.Sscanf(entry.Name(), "%03d_%s", &version, &name); err != nil {
			continue
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(name, ".sql"),
			SQL:     string(content),
		})
	}
	if len(migrations) == 0 {
		return nil, errors.New("no migrations embedded")
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitStatements splits SQL content on semicolons outside quotes and drops
// comment-only lines.
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)

	emit := func() {
		var lines []string
		for _, line := range strings.Split(current.String(), "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		char := runes[i]
		if !inString {
			if char == '\'' || char == '"' {
				inString = true
				stringChar = char
			} else if char == ';' {
				emit()
				continue
			}
		} else if char == stringChar {
			// doubled quote is an escape
			if i+1 < len(runes) && runes[i+1] == stringChar {
				current.WriteRune(char)
				current.WriteRune(char)
				i++
				continue
			}
			inString = false
		}
		current.WriteRune(char)
	}
	emit()

	return statements
}
