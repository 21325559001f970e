// Package sinusoid implements the sinusoid poll-mode south plugin: a cyclic
// sine waveform plus a simulated PLC that raises small and large discharge
// events on a fixed schedule.
package sinusoid

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
)

const (
	pluginName      = "Sinusoid Poll plugin"
	pluginVersion   = "2.3.0"
	pluginInterface = "1.0"

	// ConfigPlugin and ConfigAssetName are the category keys the plugin reads.
	ConfigPlugin    = "plugin"
	ConfigAssetName = "assetName"

	// eventLogEvery logs a heartbeat warning every N ticks.
	eventLogEvery = 50
)

var (
	// ErrNilHandle is returned when a poll is attempted without a handle.
	ErrNilHandle = errors.New("sinusoid: nil handle")
	// ErrAssetNameMissing is returned when the handle's configuration has no
	// usable asset name.
	ErrAssetNameMissing = errors.New("sinusoid: asset name not configured")
)

// DefaultConfig returns the plugin's configuration schema with defaults.
func DefaultConfig() plugin.Category {
	return plugin.Category{
		ConfigPlugin: {
			Description: "Sinusoid Poll Plugin which implements sine wave with data points",
			Type:        "string",
			Default:     "sinusoid",
			ReadOnly:    "true",
		},
		ConfigAssetName: {
			Description: "Name of Asset",
			Type:        "string",
			Default:     "sinusoid",
			DisplayName: "Asset name",
			Mandatory:   "true",
		},
	}
}

// Plugin is the entry point the host calls. It carries no simulation state;
// everything that advances between polls lives on a Handle.
type Plugin struct {
	logger *slog.Logger
	now    func() time.Time
	seed   *int64
}

// Option customizes Plugin creation.
type Option func(*Plugin)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the clock used to timestamp readings.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSeed makes every handle draw from a random source seeded with seed,
// so runs are reproducible.
func WithSeed(seed int64) Option {
	return func(p *Plugin) {
		p.seed = &seed
	}
}

// New creates a Plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle is the per-instance state threaded through every plugin call.
type Handle struct {
	id     uuid.UUID
	config plugin.Category
	sim    *Simulation
	wave   *Waveform
	rng    *rand.Rand
}

// State is a point-in-time copy of a handle's simulation state.
type State struct {
	HandleID      string `json:"handleId"`
	Time          int64  `json:"time"`
	HoldDuration  int    `json:"holdDuration"`
	Exceeded      int    `json:"ldThresholdExceeded"`
	WaveformIndex int    `json:"waveformIndex"`
}

// ID identifies the handle in logs.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Config returns a copy of the handle's configuration.
func (h *Handle) Config() plugin.Category {
	return h.config.Clone()
}

// Waveform exposes the handle's cyclic sine generator.
func (h *Handle) Waveform() *Waveform {
	return h.wave
}

// State snapshots the handle.
func (h *Handle) State() State {
	return State{
		HandleID:      h.id.String(),
		Time:          h.sim.Time,
		HoldDuration:  h.sim.HoldDuration,
		Exceeded:      h.sim.Exceeded,
		WaveformIndex: h.wave.Index(),
	}
}

// Info returns the plugin metadata and configuration schema.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		Name:      pluginName,
		Version:   pluginVersion,
		Mode:      plugin.ModePoll,
		Type:      plugin.TypeSouth,
		Interface: pluginInterface,
		Config:    DefaultConfig(),
	}
}

// Init copies cfg into a fresh handle with its simulation at time zero.
func (p *Plugin) Init(cfg plugin.Category) *Handle {
	return &Handle{
		id:     uuid.New(),
		config: cfg.Clone(),
		sim:    &Simulation{},
		wave:   NewWaveform(),
		rng:    p.newRand(),
	}
}

// Poll advances the handle's simulation by one tick and returns the reading
// for that tick.
func (p *Plugin) Poll(h *Handle) (plugin.Reading, error) {
	if h == nil {
		p.logger.Error("sinusoid exception", "error", ErrNilHandle)
		return plugin.Reading{}, ErrNilHandle
	}

	if h.sim.rerollIfDue(h.rng) {
		p.logger.Info("setting ld threshold",
			"handle", h.id,
			"ld_threshold_hold_duration", h.sim.HoldDuration,
			"ld_threshold_exceeded", h.sim.Exceeded,
		)
	}

	data := h.sim.evaluate()

	asset, ok := h.config.Value(ConfigAssetName)
	if !ok {
		err := fmt.Errorf("poll handle %s: %w", h.id, ErrAssetNameMissing)
		p.logger.Error("sinusoid exception", "handle", h.id, "time", h.sim.Time, "error", err)
		return plugin.Reading{}, err
	}

	reading := plugin.Reading{
		Asset:     asset,
		Timestamp: p.now(),
		Readings:  data.Map(),
	}

	if data.SmallDischarge == 1 || data.LargeDischarge == 1 || h.sim.Time%eventLogEvery == 0 {
		p.logger.Warn("PLC sim",
			"time", h.sim.Time,
			"asset", reading.Asset,
			"readings", data,
		)
	}

	h.sim.Time++
	return reading, nil
}

// Reconfigure returns a new handle holding a copy of cfg. The simulation and
// waveform state move to the new handle so the tick counter keeps increasing;
// the old handle must not be polled afterwards.
func (p *Plugin) Reconfigure(h *Handle, cfg plugin.Category) *Handle {
	if h == nil {
		return p.Init(cfg)
	}
	p.logger.Info("reconfiguring sinusoid plugin", "handle", h.id, "old", h.config, "new", cfg)
	return &Handle{
		id:     h.id,
		config: cfg.Clone(),
		sim:    h.sim,
		wave:   h.wave,
		rng:    h.rng,
	}
}

// Shutdown releases the handle. The plugin holds no external resources.
func (p *Plugin) Shutdown(h *Handle) {
	if h != nil {
		p.logger.Info("sinusoid plugin shut down", "handle", h.id, "time", h.sim.Time)
		return
	}
	p.logger.Info("sinusoid plugin shut down")
}

func (p *Plugin) newRand() *rand.Rand {
	if p.seed != nil {
		return rand.New(rand.NewSource(*p.seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
