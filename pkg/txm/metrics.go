package txm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "transactions_enqueued_total",
		Help:      "Number of transactions accepted for relaying",
	})
	promDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "transactions_duplicate_total",
		Help:      "Number of submissions rejected because the signature was already in flight",
	})
	promInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "txsender",
		Name:      "transactions_inflight",
		Help:      "Number of transactions currently tracked",
	})
	promForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "forward_attempts_total",
		Help:      "Number of forward attempts by result",
	}, []string{"result"})
	promOracleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "oracle_errors_total",
		Help:      "Number of confirmation queries that failed",
	})
	promValidityErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "blockhash_validity_errors_total",
		Help:      "Number of blockhash validity queries that failed",
	})
	promBusySkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "sweep_busy_skips_total",
		Help:      "Number of times a sweep skipped a transaction still being processed",
	})
	promTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "transactions_terminal_total",
		Help:      "Number of transactions removed by terminal cause",
	}, []string{"cause"})
	promTerminalRetries = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txsender",
		Name:      "transaction_retries",
		Help:      "Forward attempts made before the terminal event",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
	}, []string{"cause"})
	promTerminalLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txsender",
		Name:      "transaction_terminal_latency_seconds",
		Help:      "Time from ingestion to terminal event",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"cause"})
	promSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txsender",
		Name:      "sweep_duration_seconds",
		Help:      "Time spent handing in-flight transactions to workers in one sweep",
		Buckets:   prometheus.DefBuckets,
	})
)

func observeOutcome(o Outcome) {
	cause := o.Cause.String()
	promTerminal.WithLabelValues(cause).Inc()
	promTerminalRetries.WithLabelValues(cause).Observe(float64(o.RetryCount))
	promTerminalLatency.WithLabelValues(cause).Observe(o.Latency.Seconds())
}
