package metadata

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestEnsureSchemaToleratesExistingColumn(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS plugin_categories")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE plugin_categories ADD COLUMN enabled")).
		WillReturnError(errors.New("Error 1060: Duplicate column name 'enabled'"))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS discharge_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaPropagatesAlterFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS plugin_categories")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE plugin_categories")).
		WillReturnError(errors.New("access denied"))

	err := repo.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestGetCategory(t *testing.T) {
	repo, mock := newMockRepo(t)
	updated := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"name", "config_json", "enabled", "updated_at"}).
		AddRow("sinusoid", []byte(`{"assetName":{"description":"Name of Asset","type":"string","default":"sinusoid","value":"plc-7"}}`), false, updated)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, config_json, enabled, updated_at FROM plugin_categories WHERE name = ?")).
		WithArgs("sinusoid").
		WillReturnRows(rows)

	rec, err := repo.GetCategory(context.Background(), "sinusoid")
	require.NoError(t, err)
	assert.Equal(t, "sinusoid", rec.Name)
	assert.False(t, rec.Enabled)
	assert.Equal(t, updated, rec.UpdatedAt)
	v, ok := rec.Config.Value("assetName")
	require.True(t, ok)
	assert.Equal(t, "plc-7", v)
}

func TestGetCategoryNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM plugin_categories")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCategory(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestGetCategoryBadJSON(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"name", "config_json", "enabled", "updated_at"}).
		AddRow("sinusoid", []byte(`{not json`), true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM plugin_categories")).WillReturnRows(rows)

	_, err := repo.GetCategory(context.Background(), "sinusoid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode category sinusoid")
}

func TestSaveCategoryUpserts(t *testing.T) {
	repo, mock := newMockRepo(t)

	cfg := plugin.Category{"assetName": {Type: "string", Default: "sinusoid"}}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plugin_categories (name, config_json, enabled) VALUES (?, ?, ?)")).
		WithArgs("sinusoid", `{"assetName":{"description":"","type":"string","default":"sinusoid"}}`, true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveCategory(context.Background(), CategoryRecord{Name: " sinusoid ", Config: cfg, Enabled: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCategoryRequiresName(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.SaveCategory(context.Background(), CategoryRecord{Name: "  "})
	assert.ErrorIs(t, err, ErrCategoryNameRequired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEvent(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO discharge_events (asset, kind, sim_time, occurred_at) VALUES (?, ?, ?, ?)")).
		WithArgs("sinusoid", "large", int64(25280), at.UTC()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordEvent(context.Background(), EventRecord{Asset: "sinusoid", Kind: "large", SimTime: 25280, OccurredAt: at})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents(t *testing.T) {
	repo, mock := newMockRepo(t)
	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{"id", "asset", "kind", "sim_time", "occurred_at"}).
		AddRow(int64(2), "sinusoid", "small", int64(1202), t1).
		AddRow(int64(1), "sinusoid", "small", int64(601), t0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM discharge_events")).
		WithArgs("sinusoid", "sinusoid", maxEventLimit).
		WillReturnRows(rows)

	events, err := repo.ListEvents(context.Background(), "sinusoid", 5000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, int64(601), events[1].SimTime)
}

func TestListEventsAllAssetsDefaultLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM discharge_events")).
		WithArgs(nil, nil, defaultEventLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "asset", "kind", "sim_time", "occurred_at"}))

	events, err := repo.ListEvents(context.Background(), "", 0)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
