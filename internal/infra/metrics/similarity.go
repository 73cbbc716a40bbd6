package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(similarityCalls, similarityCallLatencyMs, similarityBatchFailures)
}

var similarityCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "similarity_calls_total",
		Help: "Per-group similarity service calls by success.",
	},
	[]string{"success"},
)

var similarityCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "similarity_call_latency_ms",
		Help:    "Similarity call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"mode"},
)

var similarityBatchFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "similarity_batch_failures_total",
		Help: "Batches whose scoring failed and whose write-back was skipped.",
	},
)

func IncSimilarityCall(success bool) {
	similarityCalls.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func ObserveSimilarityLatency(mode string, ms float64) {
	similarityCallLatencyMs.WithLabelValues(mode).Observe(ms)
}

func IncSimilarityBatchFailure() {
	similarityBatchFailures.Inc()
}
