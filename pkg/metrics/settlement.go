package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records metadata for settlement runs.
type SettlementMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	settled  *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_run_duration_seconds",
		Help:    "Duration of settlement runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_run_success",
		Help: "Successful settlement runs.",
	}, []string{"trigger"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_run_failure",
		Help: "Failed settlement runs.",
	}, []string{"trigger"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_credits_settled_total",
		Help: "Credits moved pending to settled, by batch reason.",
	}, []string{"reason"})
	reg.MustRegister(duration, success, failure, settled)
	return &SettlementMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		settled:  settled,
	}
}

// ObserveDuration records the duration of a run for the given trigger.
func (m *SettlementMetrics) ObserveDuration(trigger string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(trigger)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the given trigger.
func (m *SettlementMetrics) IncSuccess(trigger string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncFailure increments the failure counter for the given trigger.
func (m *SettlementMetrics) IncFailure(trigger string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// AddSettled adds settled credits for the given batch reason.
func (m *SettlementMetrics) AddSettled(reason string, credits int64) {
	if m == nil || m.settled == nil || credits <= 0 {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(reason)).Add(float64(credits))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
