package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/metadata"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

const defaultCoordinatorPollInterval = 5 * time.Second

// Store persists the plugin category and the discharge journal.
type Store interface {
	GetCategory(ctx context.Context, name string) (metadata.CategoryRecord, error)
	SaveCategory(ctx context.Context, rec metadata.CategoryRecord) error
	RecordEvent(ctx context.Context, ev metadata.EventRecord) error
}

// Coordinator keeps the simulator in sync with the category stored in MySQL.
// The stored row is authoritative: changes made there are applied on the
// next sync, and API updates are written through to it.
type Coordinator struct {
	simulator    *Simulator
	store        Store
	name         string
	pollInterval time.Duration
	logger       *slog.Logger
}

// CoordinatorOption customises coordinator behaviour.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorPollInterval overrides how often the stored category is read.
func WithCoordinatorPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithCategoryName overrides the stored category key.
func WithCategoryName(name string) CoordinatorOption {
	return func(c *Coordinator) {
		if name != "" {
			c.name = name
		}
	}
}

// WithCoordinatorLogger overrides the default slog logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator wires the simulator to the store. A nil store is allowed;
// configuration changes then only live in memory.
func NewCoordinator(sim *Simulator, store Store, opts ...CoordinatorOption) *Coordinator {
	coord := &Coordinator{
		simulator:    sim,
		store:        store,
		name:         DefaultCategoryName,
		pollInterval: defaultCoordinatorPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(coord)
	}
	if coord.simulator != nil && coord.store != nil {
		coord.simulator.RegisterEventListener(coord)
	}
	return coord
}

// Start begins background synchronisation until the context is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	if c.simulator == nil || c.store == nil {
		c.logger.Warn("simulation coordinator inactive (simulator or store missing)")
		return
	}

	if err := c.Sync(ctx); err != nil {
		c.logger.Error("simulation coordinator initial sync", "error", err)
	}

	go c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("simulation coordinator stopped")
			return
		case <-ticker.C:
			if err := c.Sync(ctx); err != nil {
				c.logger.Error("simulation coordinator sync", "error", err)
			}
		}
	}
}

// Sync applies the stored category and enabled flag to the simulator. When
// nothing is stored yet the simulator's current state is saved instead.
func (c *Coordinator) Sync(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	rec, err := c.store.GetCategory(ctx, c.name)
	if errors.Is(err, metadata.ErrCategoryNotFound) {
		c.logger.Info("seeding plugin category", "name", c.name)
		return c.persist(ctx)
	}
	if err != nil {
		return fmt.Errorf("load category %s: %w", c.name, err)
	}

	if !rec.Config.Equal(c.simulator.Config()) {
		c.simulator.Reconfigure(rec.Config)
	}
	if rec.Enabled {
		c.simulator.Enable()
	} else {
		c.simulator.Disable()
	}
	return nil
}

// UpdateConfig merges values into the active category, reconfigures the
// plugin and persists the result.
func (c *Coordinator) UpdateConfig(ctx context.Context, values map[string]string) (plugin.Category, error) {
	cfg, err := c.simulator.MergeConfig(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.persist(ctx); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SetEnabled toggles polling and persists the flag.
func (c *Coordinator) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		c.simulator.Enable()
	} else {
		c.simulator.Disable()
	}
	return c.persist(ctx)
}

func (c *Coordinator) persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	rec := metadata.CategoryRecord{
		Name:    c.name,
		Config:  c.simulator.Config(),
		Enabled: c.simulator.Enabled(),
	}
	if err := c.store.SaveCategory(ctx, rec); err != nil {
		return fmt.Errorf("save category %s: %w", c.name, err)
	}
	return nil
}

// OnDischarge journals a discharge event.
func (c *Coordinator) OnDischarge(ctx context.Context, ev DischargeEvent) {
	if c.store == nil {
		return
	}
	occurred := ev.At.UTC()
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	rec := metadata.EventRecord{
		Asset:      ev.Asset,
		Kind:       ev.Kind,
		SimTime:    ev.SimTime,
		OccurredAt: occurred,
	}
	if err := c.store.RecordEvent(ctx, rec); err != nil {
		c.logger.Error("record discharge event", "kind", ev.Kind, "asset", ev.Asset, "error", err)
	}
}

// ErrInvalidConfig is returned when a configuration update is rejected.
var ErrInvalidConfig = errors.New("invalid plugin configuration")
