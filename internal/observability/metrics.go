package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes poll scheduler counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	polls      prometheus.Counter
	pollErrors prometheus.Counter
	discharges *prometheus.CounterVec
	sinkErrors *prometheus.CounterVec
	simTime    prometheus.Gauge
	latency    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sinusoid_polls_total",
			Help: "Total plugin poll calls that produced a reading.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sinusoid_poll_errors_total",
			Help: "Plugin poll calls that returned an error.",
		}),
		discharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinusoid_discharge_events_total",
			Help: "Discharge windows entered, by kind.",
		}, []string{"kind"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sinusoid_sink_errors_total",
			Help: "Readings a sink failed to persist.",
		}, []string{"sink"}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sinusoid_simulation_time",
			Help: "Current value of the simulation tick counter.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sinusoid_poll_latency_seconds",
			Help:    "Time spent inside a single plugin poll.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	reg.MustRegister(m.polls, m.pollErrors, m.discharges, m.sinkErrors, m.simTime, m.latency)
	return m
}

// ObservePoll records the outcome and duration of one poll.
func (m *Metrics) ObservePoll(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
	if err != nil {
		m.pollErrors.Inc()
		return
	}
	m.polls.Inc()
}

// RecordDischarge counts the start of a discharge window.
func (m *Metrics) RecordDischarge(kind string) {
	if m == nil {
		return
	}
	m.discharges.WithLabelValues(kind).Inc()
}

// RecordSinkError counts a failed sink write.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// SetSimulationTime publishes the tick counter.
func (m *Metrics) SetSimulationTime(t int64) {
	if m == nil {
		return
	}
	m.simTime.Set(float64(t))
}
