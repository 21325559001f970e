// Package timescale stores readings in a TimescaleDB (PostgreSQL) hypertable.
package timescale

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	_ "github.com/lib/pq"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

const defaultTable = "sinusoid_readings"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ErrNotConfigured is returned by FromEnv when TIMESCALE_DSN is unset.
var ErrNotConfigured = errors.New("timescale not configured")

// Config holds the connection string and target table.
type Config struct {
	DSN   string
	Table string
}

// FromEnv reads TIMESCALE_DSN and TIMESCALE_TABLE.
func FromEnv() (Config, error) {
	cfg := Config{
		DSN:   strings.TrimSpace(os.Getenv("TIMESCALE_DSN")),
		Table: strings.TrimSpace(os.Getenv("TIMESCALE_TABLE")),
	}
	if cfg.DSN == "" {
		return Config{}, ErrNotConfigured
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return Config{}, fmt.Errorf("invalid TIMESCALE_TABLE %q", cfg.Table)
	}
	return cfg, nil
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open timescale: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timescale: %w", err)
	}
	return db, nil
}

// Sink writes readings with INSERT ... ON CONFLICT DO NOTHING so a replayed
// reading is stored once.
type Sink struct {
	db        *sql.DB
	tableName string
}

// NewSink returns a sink writing to table.
func NewSink(db *sql.DB, table string) *Sink {
	if table == "" {
		table = defaultTable
	}
	return &Sink{db: db, tableName: table}
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "timescaledb" }

// EnsureSchema creates the readings table when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + s.tableName + ` (
		asset TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		readings JSONB NOT NULL,
		PRIMARY KEY (asset, ts)
	)`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// WriteReading stores a single reading.
func (s *Sink) WriteReading(ctx context.Context, r plugin.Reading) error {
	return s.WriteBatch(ctx, []plugin.Reading{r})
}

// WriteBatch stores readings in one statement.
func (s *Sink) WriteBatch(ctx context.Context, readings []plugin.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.tableName)
	b.WriteString(" (asset, ts, readings) VALUES ")

	args := make([]any, 0, len(readings)*3)
	for i, r := range readings {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3))
		vals, err := json.Marshal(r.Readings)
		if err != nil {
			return fmt.Errorf("marshal readings: %w", err)
		}
		args = append(args, r.Asset, r.Timestamp, vals)
	}

	b.WriteString(" ON CONFLICT (asset, ts) DO NOTHING")

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert readings: %w", err)
	}
	return nil
}
