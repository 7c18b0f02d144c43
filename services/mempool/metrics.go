package mempool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusMempoolTransactions prometheus.Gauge
	prometheusMempoolBytes        prometheus.Gauge
	prometheusMempoolInserted     prometheus.Counter
	prometheusMempoolRejected     *prometheus.CounterVec
	prometheusMempoolEvicted      prometheus.Counter
	prometheusMempoolReplaced     prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusMempoolTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "transactions",
			Help:      "Number of transactions currently in the mempool",
		},
	)

	prometheusMempoolBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "bytes",
			Help:      "Total size of all transactions currently in the mempool",
		},
	)

	prometheusMempoolInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "inserted",
			Help:      "Number of transactions admitted to the mempool",
		},
	)

	prometheusMempoolRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "rejected",
			Help:      "Number of transactions refused, by reason",
		},
		[]string{"reason"},
	)

	prometheusMempoolEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "evicted",
			Help:      "Number of transactions evicted to stay within capacity",
		},
	)

	prometheusMempoolReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triton",
			Subsystem: "mempool",
			Name:      "replaced",
			Help:      "Number of transactions replaced by a higher fee rate conflict",
		},
	)
}
