package chainstate

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainstateTipHeight     prometheus.Gauge
	prometheusChainstateBlocks        *prometheus.CounterVec
	prometheusChainstateReorgs        prometheus.Counter
	prometheusChainstateReorgDepth    prometheus.Histogram
	prometheusChainstateSideBlocks    prometheus.Gauge
	prometheusChainstateProcessBlock  prometheus.Histogram
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainstateTipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "tip_height",
			Help:      "Height of the canonical chain tip",
		},
	)

	prometheusChainstateBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "blocks_processed",
			Help:      "Number of blocks processed, by outcome",
		},
		[]string{"outcome"},
	)

	prometheusChainstateReorgs = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "reorgs",
			Help:      "Number of chain reorganizations performed",
		},
	)

	prometheusChainstateReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "reorg_depth",
			Help:      "Number of blocks disconnected per reorganization",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)

	prometheusChainstateSideBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "side_blocks",
			Help:      "Number of side chain blocks currently held",
		},
	)

	prometheusChainstateProcessBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triton",
			Subsystem: "chainstate",
			Name:      "process_block",
			Help:      "Duration of block processing in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
}
