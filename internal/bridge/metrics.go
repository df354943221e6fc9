package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lodestone_bridge_queue_depth",
			Help: "Number of operations waiting for the bridge worker.",
		},
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestone_bridge_operations_total",
			Help: "Total bridge operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestone_bridge_operation_duration_seconds",
			Help:    "Engine execution time per operation, as seen by the worker.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Outcome labels for operationsTotal.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeNotReady = "not_ready"
	outcomeClosed   = "closed"
	outcomeCanceled = "canceled"
)

func init() {
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(operationsTotal)
	prometheus.MustRegister(operationDuration)
}
