package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// AccountMetrics records account operation outcomes per mode.
type AccountMetrics struct {
	duration      *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	droppedEvents prometheus.Counter
}

// NewAccountMetrics registers the account metrics on the provided registerer.
// A nil registerer yields a recorder whose methods are no-ops.
func NewAccountMetrics(reg prometheus.Registerer) *AccountMetrics {
	if reg == nil {
		return &AccountMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "account_operation_duration_seconds",
		Help:      "Duration of account operations in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "mode"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_operations_total",
		Help:      "Account operations by outcome.",
	}, []string{"operation", "mode", "outcome"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_dropped_total",
		Help:      "Auth state events dropped because a subscriber fell behind.",
	})
	reg.MustRegister(duration, outcomes, dropped)
	return &AccountMetrics{
		duration:      duration,
		outcomes:      outcomes,
		droppedEvents: dropped,
	}
}

// Observe records one finished operation.
func (m *AccountMetrics) Observe(operation, mode string, success bool, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	operation = normalizeLabel(operation)
	mode = normalizeLabel(mode)
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.duration.WithLabelValues(operation, mode).Observe(elapsed.Seconds())
	m.outcomes.WithLabelValues(operation, mode, outcome).Inc()
}

// IncDroppedEvent counts an auth event discarded for a slow subscriber.
func (m *AccountMetrics) IncDroppedEvent() {
	if m == nil || m.droppedEvents == nil {
		return
	}
	m.droppedEvents.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
