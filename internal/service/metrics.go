package service

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors
type Metrics struct {
	events           *prometheus.CounterVec
	guardDrops       *prometheus.CounterVec
	commands         *prometheus.CounterVec
	rateLimited      prometheus.Counter
	fuzzyResolutions prometheus.Counter
	queueSuperseded  prometheus.Counter
	failures         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardbot_events_total",
			Help: "Inbound platform events by kind.",
		}, []string{"kind"}),
		guardDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardbot_guard_drops_total",
			Help: "Messages dropped by the guard chain, by guard.",
		}, []string{"guard"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardbot_commands_total",
			Help: "Dispatched commands by name and outcome.",
		}, []string{"command", "success"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardbot_rate_limited_total",
			Help: "Commands rejected by the per-user rate limiter.",
		}),
		fuzzyResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardbot_fuzzy_resolutions_total",
			Help: "Commands resolved by fuzzy match.",
		}),
		queueSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guardbot_queue_superseded_total",
			Help: "Queued startup events replaced by a newer event for the same target.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guardbot_infrastructure_failures_total",
			Help: "Events dropped because a store or platform call failed, by stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(m.events, m.guardDrops, m.commands, m.rateLimited, m.fuzzyResolutions, m.queueSuperseded, m.failures)
	return m
}

// Nil-safe recorders so tests and tools can run without metrics

func (m *Metrics) event(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) guardDrop(guard string) {
	if m != nil {
		m.guardDrops.WithLabelValues(guard).Inc()
	}
}

func (m *Metrics) command(name string, success bool) {
	if m != nil {
		m.commands.WithLabelValues(name, strconv.FormatBool(success)).Inc()
	}
}

func (m *Metrics) limited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) fuzzy() {
	if m != nil {
		m.fuzzyResolutions.Inc()
	}
}

// QueueSuperseded counts startup events replaced in the bootstrap queue
func (m *Metrics) QueueSuperseded(n int) {
	if m != nil && n > 0 {
		m.queueSuperseded.Add(float64(n))
	}
}

func (m *Metrics) failure(stage string) {
	if m != nil {
		m.failures.WithLabelValues(stage).Inc()
	}
}
