package simulation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/observability"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/plugin"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/sinusoid"
)

const defaultInterval = 1 * time.Second

// Discharge kinds reported to listeners and metrics.
const (
	DischargeSmall = "small"
	DischargeLarge = "large"
)

// Sink persists readings produced by the plugin.
type Sink interface {
	Name() string
	WriteReading(ctx context.Context, r plugin.Reading) error
}

// DischargeEvent marks the tick on which a discharge window opened.
type DischargeEvent struct {
	Asset   string
	Kind    string
	SimTime int64
	At      time.Time
}

// EventListener observes discharge windows as the simulator enters them.
type EventListener interface {
	OnDischarge(ctx context.Context, ev DischargeEvent)
}

// Status is the simulator state reported to the admin API.
type Status struct {
	Enabled     bool            `json:"enabled"`
	Interval    string          `json:"interval"`
	State       sinusoid.State  `json:"state"`
	LastReading *plugin.Reading `json:"lastReading,omitempty"`
	Config      plugin.Category `json:"config"`
}

// Simulator drives a sinusoid plugin on a fixed cadence and fans readings
// out to sinks. Polls, reconfiguration and snapshots are serialised on mu.
type Simulator struct {
	plugin    *sinusoid.Plugin
	handle    *sinusoid.Handle
	sinks     []Sink
	metrics   *observability.Metrics
	listeners []EventListener
	enabled   bool
	last      *plugin.Reading
	prevSD    bool
	prevLD    bool
	mu        sync.RWMutex
	interval  time.Duration
	logger    *slog.Logger
}

// Option customizes Simulator creation.
type Option func(*Simulator)

// WithInterval overrides the default poll interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Simulator) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSinks appends reading sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *Simulator) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Simulator) {
		s.metrics = m
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDisabled starts the simulator paused.
func WithDisabled() Option {
	return func(s *Simulator) {
		s.enabled = false
	}
}

// New initialises the plugin with cfg and returns a Simulator ready to Start.
func New(p *sinusoid.Plugin, cfg plugin.Category, opts ...Option) *Simulator {
	sim := &Simulator{
		plugin:   p,
		enabled:  true,
		interval: defaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(sim)
	}
	sim.handle = p.Init(cfg)
	return sim
}

// Start polls the plugin every interval until ctx is cancelled, then shuts
// the plugin down.
func (s *Simulator) Start(ctx context.Context) {
	s.logger.Info("sinusoid poller running", "interval", s.interval, "sinks", len(s.sinks))
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Shutdown()
				s.logger.Info("sinusoid poller stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Simulator) tick(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if _, err := s.PollOnce(ctx); err != nil {
		s.logger.Error("poll failed", "error", err)
	}
}

// PollOnce polls the plugin a single time regardless of the enabled flag
// and delivers the reading to sinks and listeners.
func (s *Simulator) PollOnce(ctx context.Context) (plugin.Reading, error) {
	s.mu.Lock()
	start := time.Now()
	reading, err := s.plugin.Poll(s.handle)
	s.metrics.ObservePoll(time.Since(start), err)
	if err != nil {
		s.mu.Unlock()
		return plugin.Reading{}, err
	}

	simTime := s.handle.State().Time - 1
	s.metrics.SetSimulationTime(simTime + 1)
	events := s.detectEvents(reading, simTime)
	last := reading
	s.last = &last
	s.mu.Unlock()

	for _, sink := range s.sinks {
		if err := sink.WriteReading(ctx, reading); err != nil {
			s.metrics.RecordSinkError(sink.Name())
			s.logger.Error("write reading failed", "sink", sink.Name(), "error", err)
		}
	}

	for _, ev := range events {
		s.metrics.RecordDischarge(ev.Kind)
		s.notifyDischarge(ctx, ev)
	}

	return reading, nil
}

// detectEvents reports discharge windows opened by this reading. Caller
// holds mu.
func (s *Simulator) detectEvents(r plugin.Reading, simTime int64) []DischargeEvent {
	sd := flag(r.Readings[sinusoid.KeySmallDischarge])
	ld := flag(r.Readings[sinusoid.KeyLargeDischarge])

	var events []DischargeEvent
	if sd && !s.prevSD {
		events = append(events, DischargeEvent{Asset: r.Asset, Kind: DischargeSmall, SimTime: simTime, At: r.Timestamp})
	}
	if ld && !s.prevLD {
		events = append(events, DischargeEvent{Asset: r.Asset, Kind: DischargeLarge, SimTime: simTime, At: r.Timestamp})
	}
	s.prevSD = sd
	s.prevLD = ld
	return events
}

func flag(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 1
	case int64:
		return n == 1
	case float64:
		return n == 1
	case bool:
		return n
	default:
		return false
	}
}

// Reconfigure swaps in a new plugin configuration.
func (s *Simulator) Reconfigure(cfg plugin.Category) {
	s.mu.Lock()
	s.handle = s.plugin.Reconfigure(s.handle, cfg)
	s.mu.Unlock()
}

// MergeConfig applies values to the active configuration and reconfigures
// the plugin in one step. The configuration is left untouched when the merge
// fails.
func (s *Simulator) MergeConfig(values map[string]string) (plugin.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.handle.Config().Merge(values)
	if err != nil {
		return nil, err
	}
	s.handle = s.plugin.Reconfigure(s.handle, cfg)
	return s.handle.Config(), nil
}

// Config returns a copy of the active plugin configuration.
func (s *Simulator) Config() plugin.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle.Config()
}

// Info returns the plugin metadata.
func (s *Simulator) Info() plugin.Info {
	return s.plugin.Info()
}

// Enable resumes periodic polling.
func (s *Simulator) Enable() {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.mu.Unlock()
	s.logger.Info("sinusoid poller enabled")
}

// Disable pauses periodic polling. Simulation state is kept.
func (s *Simulator) Disable() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	s.mu.Unlock()
	s.logger.Info("sinusoid poller disabled")
}

// Enabled reports whether the simulator is currently polling.
func (s *Simulator) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// RegisterEventListener subscribes to discharge events.
func (s *Simulator) RegisterEventListener(listener EventListener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

func (s *Simulator) notifyDischarge(ctx context.Context, ev DischargeEvent) {
	s.mu.RLock()
	listeners := append([]EventListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		listener.OnDischarge(ctx, ev)
	}
}

// LastReading returns the most recent reading, if any.
func (s *Simulator) LastReading() (plugin.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return plugin.Reading{}, false
	}
	return *s.last, true
}

// Snapshot returns the simulator status.
func (s *Simulator) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Enabled:  s.enabled,
		Interval: s.interval.String(),
		State:    s.handle.State(),
		Config:   s.handle.Config(),
	}
	if s.last != nil {
		last := *s.last
		st.LastReading = &last
	}
	return st
}

// Interval returns the configured poll interval.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

// Shutdown releases the plugin handle.
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugin.Shutdown(s.handle)
}
