// Package metrics exposes Prometheus collectors for the monitoring loop.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockalert"

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ticks          *prometheus.CounterVec
	tickDuration   *prometheus.HistogramVec
	evaluated      *prometheus.CounterVec
	triggered      *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	suppressed     prometheus.Counter
	quoteLookups   *prometheus.CounterVec
	snapshots      prometheus.Counter
	snapshotsPurge prometheus.Counter
	commands       *prometheus.CounterVec
}

// New builds and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Monitoring ticks by kind and outcome.",
		}, []string{"tick", "status"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time spent in a monitoring tick.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tick"}),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rules_evaluated_total",
			Help: "Alert rules evaluated.",
		}, []string{"tick"}),
		triggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rules_triggered_total",
			Help: "Alert rules whose condition held.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Notification delivery attempts by outcome.",
		}, []string{"outcome"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cooldown_suppressed_total",
			Help: "Triggered rules held back by the cooldown.",
		}),
		quoteLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "quote_lookups_total",
			Help: "Quote lookups by the tier that answered.",
		}, []string{"tier"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_collected_total",
			Help: "Price snapshots appended.",
		}),
		snapshotsPurge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_purged_total",
			Help: "Price snapshots deleted by the horizon purge.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Inbound user commands by name.",
		}, []string{"command"}),
	}
	reg.MustRegister(
		m.ticks, m.tickDuration, m.evaluated, m.triggered, m.deliveries,
		m.suppressed, m.quoteLookups, m.snapshots, m.snapshotsPurge, m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(tick, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(tick, status).Inc()
	m.tickDuration.WithLabelValues(tick).Observe(elapsed.Seconds())
}

func (m *Metrics) RuleEvaluated(tick string) {
	if m == nil {
		return
	}
	m.evaluated.WithLabelValues(tick).Inc()
}

func (m *Metrics) RuleTriggered(kind string) {
	if m == nil {
		return
	}
	m.triggered.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(sent bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if sent {
		outcome = "sent"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Suppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

// QuoteLookup records which tier answered: fast, durable, remote or miss.
func (m *Metrics) QuoteLookup(tier string) {
	if m == nil {
		return
	}
	m.quoteLookups.WithLabelValues(tier).Inc()
}

func (m *Metrics) SnapshotsCollected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshots.Add(float64(n))
}

func (m *Metrics) SnapshotsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.snapshotsPurge.Add(float64(n))
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}
