package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"

	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "sentinel",
		Database:        "sentinel",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Table names.
const (
	tableLiteral    = "literal_rules"
	tableHeuristic  = "heuristic_rules"
	tableCategories = "category_state"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS literal_rules (
		id             TEXT PRIMARY KEY,
		position       INTEGER NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		domain         TEXT NOT NULL,
		kind           TEXT NOT NULL,
		pattern        TEXT NOT NULL,
		field          TEXT NOT NULL DEFAULT '',
		classification TEXT NOT NULL,
		threat_score   SMALLINT NOT NULL,
		manufacturer   TEXT NOT NULL DEFAULT '',
		specific       BOOLEAN NOT NULL DEFAULT FALSE,
		enabled        BOOLEAN NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS heuristic_rules (
		id             TEXT PRIMARY KEY,
		position       INTEGER NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		domain         TEXT NOT NULL,
		conditions     JSONB NOT NULL,
		mode           TEXT NOT NULL,
		classification TEXT NOT NULL,
		threat_score   SMALLINT NOT NULL,
		cooldown_ms    BIGINT NOT NULL,
		enabled        BOOLEAN NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS category_state (
		name    TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL
	)`,
}

// PostgresStore keeps the rule set in PostgreSQL. Rule order is kept in a
// position column and condition lists are stored as JSONB arrays.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings a PostgreSQL connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, WrapConnectionError("Open", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, WrapConnectionError("Ping", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	slog.Info("connected to rule store", "host", cfg.Host, "database", cfg.Database)
	return NewPostgresStoreWithDB(db), nil
}

// NewPostgresStoreWithDB wraps an open database handle.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate creates the rule tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return WrapQueryError("Migrate", "", err)
		}
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*rules.RuleSet, error) {
	rs := &rules.RuleSet{Version: rules.RuleSetVersion}

	literal, err := s.loadLiteral(ctx)
	if err != nil {
		return nil, err
	}
	heuristic, err := s.loadHeuristic(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.loadCategories(ctx)
	if err != nil {
		return nil, err
	}

	if len(literal) == 0 && len(heuristic) == 0 && len(categories) == 0 {
		return nil, WrapNotFoundError("Load", "")
	}
	rs.Literal = literal
	rs.Heuristic = heuristic
	rs.Categories = categories

	if err := rs.Validate(); err != nil {
		return nil, WrapInvalidData("Load", "", err)
	}
	return rs, nil
}

func (s *PostgresStore) loadLiteral(ctx context.Context) ([]rules.LiteralRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, domain, kind, pattern, field, classification,
		       threat_score, manufacturer, specific, enabled, created_at
		FROM literal_rules
		ORDER BY position`)
	if err != nil {
		return nil, WrapQueryError("Load", tableLiteral, err)
	}
	defer rows.Close()

	var out []rules.LiteralRule
	for rows.Next() {
		var r rules.LiteralRule
		var domain, kind string
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &domain, &kind, &r.Pattern, &r.Field,
			&r.Classification, &r.ThreatScore, &r.Manufacturer, &r.Specific, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, WrapQueryError("Load", tableLiteral, err)
		}
		r.Domain = vocab.Domain(domain)
		r.Kind = matcher.Kind(kind)
		r.Source = rules.SourceCustom
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("Load", tableLiteral, err)
	}
	return out, nil
}

func (s *PostgresStore) loadHeuristic(ctx context.Context) ([]rules.HeuristicRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, domain, conditions, mode, classification,
		       threat_score, cooldown_ms, enabled, created_at
		FROM heuristic_rules
		ORDER BY position`)
	if err != nil {
		return nil, WrapQueryError("Load", tableHeuristic, err)
	}
	defer rows.Close()

	var out []rules.HeuristicRule
	for rows.Next() {
		var r rules.HeuristicRule
		var domain, mode string
		var conditions []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &domain, &conditions, &mode,
			&r.Classification, &r.ThreatScore, &r.CooldownMs, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, WrapQueryError("Load", tableHeuristic, err)
		}
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, WrapInvalidData("Load", tableHeuristic, fmt.Errorf("rule %s conditions: %w", r.ID, err))
		}
		r.Domain = vocab.Domain(domain)
		r.Mode = rules.Mode(mode)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("Load", tableHeuristic, err)
	}
	return out, nil
}

func (s *PostgresStore) loadCategories(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, enabled FROM category_state ORDER BY name`)
	if err != nil {
		return nil, WrapQueryError("Load", tableCategories, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, WrapQueryError("Load", tableCategories, err)
		}
		out[name] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("Load", tableCategories, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Save implements Store. The previous contents are replaced in a single
// transaction.
func (s *PostgresStore) Save(ctx context.Context, rs *rules.RuleSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapConnectionError("Save", err)
	}
	defer tx.Rollback()

	for _, table := range []string{tableLiteral, tableHeuristic, tableCategories} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return WrapQueryError("Save", table, err)
		}
	}

	for i, r := range rs.Literal {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO literal_rules (id, position, name, description, domain, kind, pattern, field,
				classification, threat_score, manufacturer, specific, enabled, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			r.ID, i, r.Name, r.Description, string(r.Domain), string(r.Kind), r.Pattern, r.Field,
			r.Classification, r.ThreatScore, r.Manufacturer, r.Specific, r.Enabled, r.CreatedAt)
		if err != nil {
			return WrapQueryError("Save", tableLiteral, err)
		}
	}

	for i, r := range rs.Heuristic {
		conditions, err := json.Marshal(r.Conditions)
		if err != nil {
			return WrapInvalidData("Save", tableHeuristic, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO heuristic_rules (id, position, name, description, domain, conditions, mode,
				classification, threat_score, cooldown_ms, enabled, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.ID, i, r.Name, r.Description, string(r.Domain), string(conditions), string(r.Mode),
			r.Classification, r.ThreatScore, r.CooldownMs, r.Enabled, r.CreatedAt)
		if err != nil {
			return WrapQueryError("Save", tableHeuristic, err)
		}
	}

	names := make([]string, 0, len(rs.Categories))
	for name := range rs.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO category_state (name, enabled) VALUES ($1, $2)`, name, rs.Categories[name]); err != nil {
			return WrapQueryError("Save", tableCategories, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return WrapQueryError("Save", "", err)
	}
	return nil
}
