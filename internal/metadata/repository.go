package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

// ErrCategoryNotFound is returned when no category row exists for a name.
var ErrCategoryNotFound = errors.New("category not found")

// ErrCategoryNameRequired is returned when a save lacks a name.
var ErrCategoryNameRequired = errors.New("category name is required")

// Repository persists non time-series metadata in MySQL.
type Repository struct {
	db *sql.DB
}

// CategoryRecord is the stored configuration of one plugin instance.
type CategoryRecord struct {
	Name      string          `json:"name"`
	Config    plugin.Category `json:"config"`
	Enabled   bool            `json:"enabled"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewRepository constructs a Repository with the provided sql.DB pool.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the required tables if they are missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.ensureCategoriesTable(ctx); err != nil {
		return err
	}
	return r.ensureEventsTable(ctx)
}

func (r *Repository) ensureCategoriesTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS plugin_categories (
		name VARCHAR(255) NOT NULL PRIMARY KEY,
		config_json JSON NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	// tables created before polling could be paused lack the flag
	const alter = `ALTER TABLE plugin_categories ADD COLUMN enabled BOOLEAN NOT NULL DEFAULT TRUE AFTER config_json`
	if _, err := r.db.ExecContext(ctx, alter); err != nil && !isDuplicateColumnError(err) {
		return err
	}
	return nil
}

// Ping checks MySQL connectivity using the provided context.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetCategory loads the category stored under name.
func (r *Repository) GetCategory(ctx context.Context, name string) (CategoryRecord, error) {
	const query = `SELECT name, config_json, enabled, updated_at FROM plugin_categories WHERE name = ?`

	var (
		rec CategoryRecord
		raw []byte
	)
	err := r.db.QueryRowContext(ctx, query, name).Scan(&rec.Name, &raw, &rec.Enabled, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CategoryRecord{}, ErrCategoryNotFound
	}
	if err != nil {
		return CategoryRecord{}, err
	}
	if err := json.Unmarshal(raw, &rec.Config); err != nil {
		return CategoryRecord{}, fmt.Errorf("decode category %s: %w", name, err)
	}
	return rec, nil
}

// SaveCategory inserts or replaces the category row for rec.Name.
func (r *Repository) SaveCategory(ctx context.Context, rec CategoryRecord) error {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return ErrCategoryNameRequired
	}
	raw, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("encode category %s: %w", name, err)
	}

	const stmt = `INSERT INTO plugin_categories (name, config_json, enabled) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE config_json = VALUES(config_json), enabled = VALUES(enabled)`
	_, err = r.db.ExecContext(ctx, stmt, name, string(raw), rec.Enabled)
	return err
}

func nullableString(val string) interface{} {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
