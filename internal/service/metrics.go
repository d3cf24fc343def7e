package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Lifecycle operations partitioned by operation and outcome
	linkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slink_link_operations_total",
			Help: "Link lifecycle operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Best-effort side effects that failed and were swallowed
	sideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slink_side_effect_failures_total",
			Help: "Failed best-effort side effects by task",
		},
		[]string{"task"},
	)

	// Random key generation attempts per allocated key
	randomKeyAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slink_random_key_attempts",
			Help:    "Attempts needed to allocate a random key",
			Buckets: []float64{1, 2, 3, 5, 10},
		},
	)
)

func observeOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if le, ok := AsLinkError(err); ok {
			result = string(le.Code)
		}
	}
	linkOperationsTotal.WithLabelValues(operation, result).Inc()
}
