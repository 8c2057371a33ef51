package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "surge_worker_"

var postsSent = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "posts_sent_total",
		Help: "Posts confirmed written to the stream",
	})

var postsFailed = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "posts_failed_total",
		Help: "Posts dropped after retries, breaker trips or serialization failures",
	})

var throttles = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "throttles_total",
		Help: "Throttled records and throttled batch attempts",
	})

var sendRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "send_retries_total",
		Help: "Batch send attempts that were retried",
	})

var batchesSent = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "batches_sent_total",
		Help: "Batches delivered to the stream",
	})

var batchLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    MetricsPrefix + "batch_latency_seconds",
		Help:    "Time to deliver one batch, retries included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

var breakerOpened = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "breaker_opened_total",
		Help: "Times the send circuit breaker opened",
	})

var targetRate = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "target_rate",
		Help: "Records per second this worker currently aims for",
	})

var currentPhase = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "current_phase",
		Help: "Phase number this worker is currently assigned",
	})

func RecordPostsSent(count int) {
	postsSent.Add(float64(count))
}

func RecordPostsFailed(count int) {
	postsFailed.Add(float64(count))
}

func RecordThrottles(count int) {
	throttles.Add(float64(count))
}

func RecordSendRetry() {
	sendRetries.Inc()
}

func RecordBatchSent(seconds float64) {
	batchesSent.Inc()
	batchLatency.Observe(seconds)
}

func RecordBreakerOpened() {
	breakerOpened.Inc()
}

func RecordAssignment(phase, rate int) {
	currentPhase.Set(float64(phase))
	targetRate.Set(float64(rate))
}
