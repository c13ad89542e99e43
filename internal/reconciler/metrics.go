package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the reconciler's Prometheus collectors.
type Metrics struct {
	Ticks       prometheus.Counter
	Queries     *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	InFlight    prometheus.Gauge
	Sessions    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zapdash",
			Subsystem: "reconciler",
			Name:      "ticks_total",
			Help:      "Reconciliation passes started.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapdash",
			Subsystem: "reconciler",
			Name:      "queries_total",
			Help:      "Remote status queries by outcome.",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zapdash",
			Subsystem: "reconciler",
			Name:      "transitions_total",
			Help:      "Applied record status transitions by target status.",
		}, []string{"status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zapdash",
			Subsystem: "reconciler",
			Name:      "inflight_queries",
			Help:      "Records with a status query in flight.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zapdash",
			Subsystem: "reconciler",
			Name:      "session_active",
			Help:      "1 while a reconciliation session is running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.Queries, m.Transitions, m.InFlight, m.Sessions)
	}
	return m
}

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeUnknown   = "unknown_status"
	outcomeDiscarded = "discarded"
	outcomeAborted   = "aborted"
)
