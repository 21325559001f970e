package metadata

import (
	"context"
	"strings"
	"time"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventRecord is one entry of the discharge journal.
type EventRecord struct {
	ID         int64     `json:"id"`
	Asset      string    `json:"asset"`
	Kind       string    `json:"kind"`
	SimTime    int64     `json:"simTime"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (r *Repository) ensureEventsTable(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS discharge_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		asset VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		sim_time BIGINT NOT NULL,
		occurred_at TIMESTAMP(6) NOT NULL,
		INDEX idx_events_asset (asset, occurred_at)
	)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// RecordEvent appends ev to the journal.
func (r *Repository) RecordEvent(ctx context.Context, ev EventRecord) error {
	occurred := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		occurred = time.Now().UTC()
	}
	const stmt = `INSERT INTO discharge_events (asset, kind, sim_time, occurred_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, stmt, ev.Asset, ev.Kind, ev.SimTime, occurred)
	return err
}

// ListEvents returns the newest journal entries first. An empty asset lists
// every asset; limit is clamped to [1, 1000] with 100 as the default.
func (r *Repository) ListEvents(ctx context.Context, asset string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	const query = `SELECT id, asset, kind, sim_time, occurred_at FROM discharge_events
		WHERE (? IS NULL OR asset = ?)
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`
	filter := nullableString(strings.TrimSpace(asset))
	rows, err := r.db.QueryContext(ctx, query, filter, filter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]EventRecord, 0)
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(&ev.ID, &ev.Asset, &ev.Kind, &ev.SimTime, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
