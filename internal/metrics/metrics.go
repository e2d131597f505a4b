// Package metrics exposes Prometheus counters for game transitions,
// notification deliveries, ledger writes and HTTP traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	LedgerWrites    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	BackgroundTasks prometheus.Gauge
}

// New builds a Metrics set on its own registry so tests and servers never
// collide on the global default registerer.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choregame_transitions_total",
				Help: "Committed game transitions by kind",
			},
			[]string{"kind"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choregame_notification_deliveries_total",
				Help: "Notification delivery attempts by kind, channel and result",
			},
			[]string{"kind", "channel", "result"},
		),
		LedgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "choregame_ledger_writes_total",
				Help: "Mail and reward ledger writes by ledger and result",
			},
			[]string{"ledger", "result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		BackgroundTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "choregame_background_tasks",
			Help: "Transition side-effect pipelines currently running",
		}),
	}

	m.registry.MustRegister(
		m.Transitions,
		m.Deliveries,
		m.LedgerWrites,
		m.HTTPRequests,
		m.HTTPDuration,
		m.BackgroundTasks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
