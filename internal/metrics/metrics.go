// Package metrics exposes Prometheus instruments for ingestion, the
// monitor loop, and alert delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors so they can be registered once and
// passed to the components that update them.
type Metrics struct {
	TicksIngested    *prometheus.CounterVec
	BarsFlushed      *prometheus.CounterVec
	IngestReconnects prometheus.Counter

	CyclesTotal    prometheus.Counter
	CycleDuration  prometheus.Histogram
	RulesEvaluated prometheus.Counter
	RuleErrors     prometheus.Counter

	AlertsFired      prometheus.Counter
	AlertsSuppressed prometheus.Counter
	NotifyFailures   *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "ingest",
			Name:      "ticks_total",
			Help:      "Trade ticks received per symbol.",
		}, []string{"symbol"}),
		BarsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "ingest",
			Name:      "bars_flushed_total",
			Help:      "Closed bars written to storage per timeframe.",
		}, []string{"timeframe"}),
		IngestReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "ingest",
			Name:      "reconnects_total",
			Help:      "Websocket reconnect attempts.",
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Completed evaluation cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pairwatch",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		RulesEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "monitor",
			Name:      "rules_evaluated_total",
			Help:      "Rules evaluated across all cycles.",
		}),
		RuleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "monitor",
			Name:      "rule_errors_total",
			Help:      "Rule evaluations that ended in an error.",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Alerts that fired and were recorded.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Threshold breaches suppressed by cooldown.",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairwatch",
			Subsystem: "alerts",
			Name:      "notify_failures_total",
			Help:      "Notification delivery failures per channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.TicksIngested,
		m.BarsFlushed,
		m.IngestReconnects,
		m.CyclesTotal,
		m.CycleDuration,
		m.RulesEvaluated,
		m.RuleErrors,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.NotifyFailures,
	)
	return m
}

// NewNop returns unregistered collectors for tests and commands that do
// not serve a metrics endpoint.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
