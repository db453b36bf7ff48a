package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DispatchMetrics
	m.ObserveDuration("completed", time.Second)
	m.IncOutcome("error", "replication")
	m.IncCompensation()
	m.IncSequenceConflict()
	m.IncStatementRetry()

	unregistered := NewDispatchMetrics(nil)
	unregistered.IncOutcome("completed", "")
}

func TestCountersAccumulate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.IncOutcome("completed", "")
	m.IncOutcome("error", "replication")
	m.IncOutcome("error", "replication")
	m.IncCompensation()
	m.IncSequenceConflict()

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("error", "replication")); got != 2 {
		t.Fatalf("expected 2 error outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.compensations); got != 1 {
		t.Fatalf("expected 1 compensation, got %v", got)
	}
	if got := testutil.ToFloat64(m.sequenceConflicts); got != 1 {
		t.Fatalf("expected 1 sequence conflict, got %v", got)
	}
}

func TestEmptyLabelNormalized(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.IncOutcome("", "finalize")
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("unknown", "finalize")); got != 1 {
		t.Fatalf("expected normalized label, got %v", got)
	}
}
