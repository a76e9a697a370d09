// Package metrics exposes prometheus collectors for the sync engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "courselink"
)

// Mutation results.
const (
	ResultApplied = "applied"
	ResultNoop    = "noop"
	ResultFailed  = "failed"
)

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

var (
	// Events counts incoming sync events by kind and whether a handler acted on them.
	Events = NewCounter("events_total", "engine", "Sync events received", []string{"kind", "outcome"})

	// Mutations counts store mutations by source (handler kind or pass name),
	// action (enrol, unenrol, assign, unassign) and result.
	Mutations = NewCounter("mutations_total", "engine", "Membership and role mutations", []string{"source", "action", "result"})

	reconcileDuration = NewHistogramWithBuckets(
		"duration_seconds",
		"reconcile",
		"Duration of full reconciliation runs",
		[]string{"scope"},
		prometheus.ExponentialBuckets(0.005, 2, 14),
	)

	// ReconcileRuns counts reconciliation runs by outcome (ok, interrupted, error).
	ReconcileRuns = NewCounter("runs_total", "reconcile", "Full reconciliation runs", []string{"outcome"})

	// QueueDepth is the number of events waiting in the dispatcher queue.
	QueueDepth = NewGauge("queue_depth", "events", "Events waiting for dispatch", nil)
)

// ReportMutation records one mutation attempt.
func ReportMutation(source, action string, changed bool, err error) {
	result := ResultApplied
	switch {
	case err != nil:
		result = ResultFailed
	case !changed:
		result = ResultNoop
	}
	Mutations.WithLabelValues(source, action, result).Inc()
}

// ReportReconcile records the duration of a run. scope is "all", "link" or "course".
func ReportReconcile(scope string, took time.Duration) {
	reconcileDuration.WithLabelValues(scope).Observe(took.Seconds())
}
