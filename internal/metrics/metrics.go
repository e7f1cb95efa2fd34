// Package metrics exposes Prometheus instrumentation for the slot allocator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "fitness_booking"

// Operations recorded by the allocator.
const (
	OpBook   = "book"
	OpCancel = "cancel"
)

var (
	allocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "allocations_total",
			Help:      "Count of allocator operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	allocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "allocation_duration_seconds",
			Help:      "Time spent in an allocator operation, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)
	eventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "event_publish_failures_total",
			Help:      "Count of booking events that could not be published.",
		},
		[]string{"type"},
	)
)

var registerMetrics sync.Once

// Register adds the collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(allocationsTotal)
		reg.MustRegister(allocationDuration)
		reg.MustRegister(eventPublishFailures)
	})
}

// RecordAllocation counts one operation and its latency.
func RecordAllocation(operation, outcome string, elapsed time.Duration) {
	allocationsTotal.WithLabelValues(operation, outcome).Inc()
	allocationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordPublishFailure counts an event that was dropped.
func RecordPublishFailure(eventType string) {
	eventPublishFailures.WithLabelValues(eventType).Inc()
}
