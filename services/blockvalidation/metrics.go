package blockvalidation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBlockValidationValidateBlock prometheus.Histogram
	prometheusBlockValidationAccepted      prometheus.Counter
	prometheusBlockValidationRejected      *prometheus.CounterVec
	prometheusBlockValidationProofVerify   prometheus.Histogram
	prometheusBlockValidationRejectedCache prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBlockValidationValidateBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triton",
			Subsystem: "blockvalidation",
			Name:      "validate_block",
			Help:      "Duration of block validation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	prometheusBlockValidationAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "blockvalidation",
			Name:      "blocks_accepted",
			Help:      "Number of blocks that passed validation",
		},
	)

	prometheusBlockValidationRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "blockvalidation",
			Name:      "blocks_rejected",
			Help:      "Number of blocks that failed validation, by failing stage",
		},
		[]string{"stage"},
	)

	prometheusBlockValidationProofVerify = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triton",
			Subsystem: "blockvalidation",
			Name:      "proof_verify",
			Help:      "Duration of validity proof verification in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	prometheusBlockValidationRejectedCache = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "blockvalidation",
			Name:      "rejected_cache_hits",
			Help:      "Number of blocks refused because their hash was in the rejected cache",
		},
	)
}
