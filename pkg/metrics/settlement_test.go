package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSettlementMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveDuration("interval", 2*time.Second)
	m.IncSuccess("interval")
	m.IncFailure("manual")
	m.AddSettled("like", 13)
	m.AddSettled("like", 7)

	if got := testutil.ToFloat64(m.success.WithLabelValues("interval")); got != 1 {
		t.Fatalf("success counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("manual")); got != 1 {
		t.Fatalf("failure counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.settled.WithLabelValues("like")); got != 20 {
		t.Fatalf("settled counter = %v, want 20", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewSettlementMetrics(nil)
	m.ObserveDuration("interval", time.Second)
	m.IncSuccess("interval")
	m.IncFailure("interval")
	m.AddSettled("like", 1)
}

func TestNegativeSettledIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)
	m.AddSettled("like", -5)
	if got := testutil.ToFloat64(m.settled.WithLabelValues("like")); got != 0 {
		t.Fatalf("negative credits should not be recorded, got %v", got)
	}
}
