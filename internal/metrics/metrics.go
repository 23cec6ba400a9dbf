// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_dispatch_outcomes_total",
		Help: "Dispatch attempts by event type and outcome (delivered, failed, skipped)",
	}, []string{"event_type", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_dispatch_duration_seconds",
		Help:    "Time spent on a single delivery attempt, including the HTTP round trip",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
)

// ObserveDispatch records one completed dispatch attempt.
func ObserveDispatch(eventType, outcome string, elapsed time.Duration) {
	dispatchOutcomes.WithLabelValues(eventType, outcome).Inc()
	dispatchDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}
