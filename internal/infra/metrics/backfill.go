package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(backfillBatches, backfillGroups, backfillBatchSeconds)
}

var backfillBatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backfill_batches_total",
		Help: "Backfill invocations by resulting state transition.",
	},
	[]string{"transition"},
)

var backfillGroups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backfill_groups_total",
		Help: "Groups flowing through the pipeline per stage (selected, scored, applied).",
	},
	[]string{"stage"},
)

var backfillBatchSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "backfill_batch_duration_seconds",
		Help:    "Wall-clock duration of one backfill invocation.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
)

func IncBatch(transition string) {
	backfillBatches.WithLabelValues(transition).Inc()
}

func AddGroups(stage string, n int) {
	backfillGroups.WithLabelValues(stage).Add(float64(n))
}

func ObserveBatchDuration(seconds float64) {
	backfillBatchSeconds.Observe(seconds)
}
