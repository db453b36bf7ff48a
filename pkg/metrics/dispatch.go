package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records load workflow outcomes.
type DispatchMetrics struct {
	duration          *prometheus.HistogramVec
	outcomes          *prometheus.CounterVec
	compensations     prometheus.Counter
	sequenceConflicts prometheus.Counter
	statementRetries  prometheus.Counter
}

// NewDispatchMetrics registers the dispatch metrics on the provided
// registerer. A nil registerer yields a no-op instance.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "load_duration_seconds",
		Help:    "Duration of load workflow runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "load_outcomes_total",
		Help: "Load workflow outcomes by status and failed step.",
	}, []string{"status", "failed_step"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "load_compensations_total",
		Help: "Times claimed orders were released after a step failure.",
	})
	sequenceConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sequence_conflicts_total",
		Help: "Lost conditional updates against the document counter.",
	})
	statementRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "statement_retries_total",
		Help: "Statement attempts retried after a transient failure.",
	})
	reg.MustRegister(duration, outcomes, compensations, sequenceConflicts, statementRetries)
	return &DispatchMetrics{
		duration:          duration,
		outcomes:          outcomes,
		compensations:     compensations,
		sequenceConflicts: sequenceConflicts,
		statementRetries:  statementRetries,
	}
}

// ObserveDuration records how long a workflow run took.
func (d *DispatchMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if d == nil || d.duration == nil {
		return
	}
	d.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncOutcome counts one workflow result. failedStep is empty on success.
func (d *DispatchMetrics) IncOutcome(status, failedStep string) {
	if d == nil || d.outcomes == nil {
		return
	}
	d.outcomes.WithLabelValues(normalizeLabel(status), failedStep).Inc()
}

// IncCompensation counts one releaseOrders invocation.
func (d *DispatchMetrics) IncCompensation() {
	if d == nil || d.compensations == nil {
		return
	}
	d.compensations.Inc()
}

// IncSequenceConflict counts one lost counter race.
func (d *DispatchMetrics) IncSequenceConflict() {
	if d == nil || d.sequenceConflicts == nil {
		return
	}
	d.sequenceConflicts.Inc()
}

// IncStatementRetry counts one transient-failure retry.
func (d *DispatchMetrics) IncStatementRetry() {
	if d == nil || d.statementRetries == nil {
		return
	}
	d.statementRetries.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
