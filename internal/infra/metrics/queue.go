package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueDepth, tasksConsumed, taskErrors)
}

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "backfill_queue_depth",
		Help: "Number of backfill tasks waiting in the queue.",
	},
)

var tasksConsumed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "backfill_tasks_consumed_total",
		Help: "Task envelopes dequeued and dispatched.",
	},
)

var taskErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "backfill_task_errors_total",
		Help: "Failed task invocations by kind (decode, timeout, pipeline, lock).",
	},
	[]string{"kind"},
)

func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}

func IncTaskConsumed() {
	tasksConsumed.Inc()
}

func IncTaskError(kind string) {
	taskErrors.WithLabelValues(kind).Inc()
}
