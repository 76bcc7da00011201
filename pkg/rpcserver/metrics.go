package rpcserver

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txsender",
		Name:      "rpc_requests_total",
		Help:      "JSON-RPC requests by method and response code",
	}, []string{"method", "code"})
	promSendTransactionTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txsender",
		Name:      "send_transaction_time_seconds",
		Help:      "Time spent accepting a sendTransaction request",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})
)

func observeRequest(method string, err error) {
	promRequests.WithLabelValues(method, strconv.Itoa(errorCode(err))).Inc()
}

func observeSendTransaction(start time.Time) {
	promSendTransactionTime.Observe(time.Since(start).Seconds())
}
