package pipeline

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments the intent pipeline. A nil *Metrics is a no-op so
// embedders that do not scrape can pass nothing.
type Metrics struct {
	registry          *prometheus.Registry
	intentsTotal      *prometheus.CounterVec
	sessionsTotal     *prometheus.CounterVec
	pollAttemptsTotal prometheus.Counter
	activeSessions    prometheus.Gauge
}

func NewMetrics() *Metrics {
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oneauth_intents_total",
		Help: "Total number of intent pipeline runs",
	}, []string{"result"})

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oneauth_sessions_total",
		Help: "Total number of dialog sessions opened",
	}, []string{"flow", "outcome"})

	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oneauth_poll_attempts_total",
		Help: "Status endpoint poll attempts during intent execution",
	})

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "oneauth_active_sessions",
		Help: "Dialog sessions currently open",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(intents, sessions, polls, active)

	return &Metrics{
		registry:          r,
		intentsTotal:      intents,
		sessionsTotal:     sessions,
		pollAttemptsTotal: polls,
		activeSessions:    active,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) incIntent(result string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incSession(flow, outcome string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(flow, outcome).Inc()
}

func (m *Metrics) incPoll() {
	if m == nil {
		return
	}
	m.pollAttemptsTotal.Inc()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
