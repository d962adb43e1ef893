// Package metrics exposes engine and sync activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldcrew/crewclock/internal/offline"
)

const namespace = "crewclock"

// Gauges are sampled at scrape time.
type Gauges struct {
	// ActiveSessions returns the number of open clock sessions (optional)
	ActiveSessions func() float64

	// QueueDepth returns the number of queued offline events (optional)
	QueueDepth func() float64
}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	clockEvents    *prometheus.CounterVec
	gpsDenied      *prometheus.CounterVec
	entries        prometheus.Counter
	hoursWorked    prometheus.Counter
	laborCost      prometheus.Counter
	entryHours     prometheus.Histogram
	drains         *prometheus.CounterVec
	syncedEvents   *prometheus.CounterVec
	failedReplays  prometheus.Counter
	unresolvedHeld prometheus.Counter
}

// New creates the collectors and registers them, with Go and process
// collectors, on a new registry.
func New(g Gauges) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		clockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_events_total",
			Help:      "Clock events applied, by kind and source.",
		}, []string{"kind", "source"}),
		gpsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gps_denied_total",
			Help:      "Clock requests denied by the GPS policy, by kind.",
		}, []string{"kind"}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_finalized_total",
			Help:      "Time entries finalized at clock-out.",
		}),
		hoursWorked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_worked_total",
			Help:      "Payable hours of finalized entries.",
		}),
		laborCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labor_cost_total",
			Help:      "Labor cost of finalized entries.",
		}),
		entryHours: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entry_hours",
			Help:      "Payable hours per finalized entry.",
			Buckets:   []float64{1, 2, 4, 6, 8, 10, 12, 16},
		}),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drains_total",
			Help:      "Offline queue drains, by result.",
		}, []string{"result"}),
		syncedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Offline events synced, by outcome.",
		}, []string{"outcome"}),
		failedReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replay_failures_total",
			Help:      "Offline event replays that failed.",
		}),
		unresolvedHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "unresolved_total",
			Help:      "Offline events that reached the attempt limit.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.clockEvents, m.gpsDenied, m.entries, m.hoursWorked, m.laborCost,
		m.entryHours, m.drains, m.syncedEvents, m.failedReplays, m.unresolvedHeld,
	)
	if g.ActiveSessions != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open clock sessions.",
		}, g.ActiveSessions))
	}
	if g.QueueDepth != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "queue_depth",
			Help:      "Offline events waiting to be synced.",
		}, g.QueueDepth))
	}
	return m
}

// ClockEvent implements timeclock.Observer.
func (m *Metrics) ClockEvent(kind, source string) {
	m.clockEvents.WithLabelValues(kind, source).Inc()
}

// GPSDenied implements timeclock.Observer.
func (m *Metrics) GPSDenied(kind string) {
	m.gpsDenied.WithLabelValues(kind).Inc()
}

// EntryFinalized implements timeclock.Observer.
func (m *Metrics) EntryFinalized(hours, cost float64) {
	m.entries.Inc()
	m.hoursWorked.Add(hours)
	m.laborCost.Add(cost)
	m.entryHours.Observe(hours)
}

// ObserveDrain records a drain attempt. Its signature matches
// offline.SyncerConfig.OnDrain.
func (m *Metrics) ObserveDrain(r offline.DrainResult, err error) {
	switch {
	case errors.Is(err, offline.ErrDrainInProgress):
		m.drains.WithLabelValues("skipped").Inc()
		return
	case err != nil:
		m.drains.WithLabelValues("error").Inc()
	default:
		m.drains.WithLabelValues("ok").Inc()
	}
	m.syncedEvents.WithLabelValues("applied").Add(float64(r.Synced - r.Conflicts))
	m.syncedEvents.WithLabelValues("conflict").Add(float64(r.Conflicts))
	m.failedReplays.Add(float64(r.Failed))
	m.unresolvedHeld.Add(float64(r.Unresolved))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
