package simulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/metadata"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/sinusoid"
)

type memoryStore struct {
	mu         sync.Mutex
	categories map[string]metadata.CategoryRecord
	events     []metadata.EventRecord
	saves      int
	getErr     error
	saveErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{categories: make(map[string]metadata.CategoryRecord)}
}

func (s *memoryStore) GetCategory(_ context.Context, name string) (metadata.CategoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return metadata.CategoryRecord{}, s.getErr
	}
	rec, ok := s.categories[name]
	if !ok {
		return metadata.CategoryRecord{}, metadata.ErrCategoryNotFound
	}
	rec.Config = rec.Config.Clone()
	return rec, nil
}

func (s *memoryStore) SaveCategory(_ context.Context, rec metadata.CategoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	rec.Config = rec.Config.Clone()
	s.categories[rec.Name] = rec
	return nil
}

func (s *memoryStore) RecordEvent(_ context.Context, ev metadata.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memoryStore) stored(name string) (metadata.CategoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.categories[name]
	return rec, ok
}

func newTestCoordinator(store Store) (*Coordinator, *Simulator) {
	sim := newTestSimulator()
	return NewCoordinator(sim, store, WithCoordinatorLogger(quietLogger)), sim
}

func TestSyncSeedsMissingCategory(t *testing.T) {
	store := newMemoryStore()
	coord, _ := newTestCoordinator(store)

	require.NoError(t, coord.Sync(context.Background()))

	rec, ok := store.stored(DefaultCategoryName)
	require.True(t, ok)
	assert.True(t, rec.Enabled)
	assert.True(t, rec.Config.Equal(sinusoid.DefaultConfig()))
}

func TestSyncAppliesStoredCategory(t *testing.T) {
	store := newMemoryStore()
	cfg, err := sinusoid.DefaultConfig().Merge(map[string]string{sinusoid.ConfigAssetName: "plc-stored"})
	require.NoError(t, err)
	store.categories["line-3"] = metadata.CategoryRecord{Name: "line-3", Config: cfg, Enabled: false}

	sim := newTestSimulator()
	coord := NewCoordinator(sim, store, WithCategoryName("line-3"), WithCoordinatorLogger(quietLogger))

	require.NoError(t, coord.Sync(context.Background()))
	assert.False(t, sim.Enabled())
	v, _ := sim.Config().Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "plc-stored", v)

	rec := store.categories["line-3"]
	rec.Enabled = true
	store.categories["line-3"] = rec
	require.NoError(t, coord.Sync(context.Background()))
	assert.True(t, sim.Enabled())
	assert.Equal(t, 0, store.saves, "sync never writes an existing row")
}

func TestSyncPropagatesStoreError(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	coord, sim := newTestCoordinator(store)

	err := coord.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, sim.Enabled())
}

func TestUpdateConfigPersists(t *testing.T) {
	store := newMemoryStore()
	coord, sim := newTestCoordinator(store)

	cfg, err := coord.UpdateConfig(context.Background(), map[string]string{sinusoid.ConfigAssetName: "plc-11"})
	require.NoError(t, err)
	v, _ := cfg.Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "plc-11", v)

	v, _ = sim.Config().Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "plc-11", v)

	rec, ok := store.stored(DefaultCategoryName)
	require.True(t, ok)
	v, _ = rec.Config.Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "plc-11", v)
}

func TestUpdateConfigRejectsReadOnly(t *testing.T) {
	store := newMemoryStore()
	coord, _ := newTestCoordinator(store)

	_, err := coord.UpdateConfig(context.Background(), map[string]string{sinusoid.ConfigPlugin: "other"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = coord.UpdateConfig(context.Background(), map[string]string{sinusoid.ConfigAssetName: ""})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 0, store.saves)
}

func TestUpdateConfigPersistFailure(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("read-only replica")
	coord, sim := newTestCoordinator(store)

	_, err := coord.UpdateConfig(context.Background(), map[string]string{sinusoid.ConfigAssetName: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
	v, _ := sim.Config().Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "x", v, "the running plugin keeps the new config")
}

func TestSetEnabledPersists(t *testing.T) {
	store := newMemoryStore()
	coord, sim := newTestCoordinator(store)

	require.NoError(t, coord.SetEnabled(context.Background(), false))
	assert.False(t, sim.Enabled())
	rec, _ := store.stored(DefaultCategoryName)
	assert.False(t, rec.Enabled)

	require.NoError(t, coord.SetEnabled(context.Background(), true))
	rec, _ = store.stored(DefaultCategoryName)
	assert.True(t, rec.Enabled)
}

func TestCoordinatorWithoutStore(t *testing.T) {
	sim := newTestSimulator()
	coord := NewCoordinator(sim, nil, WithCoordinatorLogger(quietLogger))

	require.NoError(t, coord.Sync(context.Background()))
	require.NoError(t, coord.SetEnabled(context.Background(), false))
	assert.False(t, sim.Enabled())

	cfg, err := coord.UpdateConfig(context.Background(), map[string]string{sinusoid.ConfigAssetName: "mem-only"})
	require.NoError(t, err)
	v, _ := cfg.Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "mem-only", v)

	coord.OnDischarge(context.Background(), DischargeEvent{Kind: DischargeLarge})
	coord.Start(context.Background())
}

func TestDischargeEventsAreJournaled(t *testing.T) {
	store := newMemoryStore()
	_, sim := newTestCoordinator(store)

	for i := 0; i < 700; i++ {
		_, err := sim.PollOnce(context.Background())
		require.NoError(t, err)
	}

	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.Equal(t, DischargeSmall, ev.Kind)
	assert.Equal(t, int64(601), ev.SimTime)
	assert.Equal(t, "sinusoid", ev.Asset)
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
}

func TestStartSyncsPeriodically(t *testing.T) {
	store := newMemoryStore()
	sim := newTestSimulator()
	coord := NewCoordinator(sim, store,
		WithCoordinatorPollInterval(5*time.Millisecond),
		WithCoordinatorLogger(quietLogger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)

	_, ok := store.stored(DefaultCategoryName)
	require.True(t, ok, "initial sync seeds the store")

	store.mu.Lock()
	rec := store.categories[DefaultCategoryName]
	rec.Enabled = false
	store.categories[DefaultCategoryName] = rec
	store.mu.Unlock()

	require.Eventually(t, func() bool { return !sim.Enabled() }, time.Second, 5*time.Millisecond)
}

func TestCategoryFromFile(t *testing.T) {
	cfg, err := CategoryFromFile("")
	require.NoError(t, err)
	assert.True(t, cfg.Equal(sinusoid.DefaultConfig()))

	path := t.TempDir() + "/category.yaml"
	require.NoError(t, writeFile(path, "assetName:\n  value: plc-yaml\n"))
	cfg, err = CategoryFromFile(path)
	require.NoError(t, err)
	v, _ := cfg.Value(sinusoid.ConfigAssetName)
	assert.Equal(t, "plc-yaml", v)
	assert.Equal(t, "true", cfg[sinusoid.ConfigPlugin].ReadOnly)

	_, err = CategoryFromFile(path + ".missing")
	assert.Error(t, err)
}

func TestCategoryFromEnv(t *testing.T) {
	t.Setenv("SINUSOID_CATEGORY_FILE", "")
	cfg, err := CategoryFromEnv()
	require.NoError(t, err)
	assert.Equal(t, sinusoid.DefaultConfig(), cfg)
}
