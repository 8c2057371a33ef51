package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "surge_orchestrator_"

const (
	fleetLabel  = "fleet"
	statusLabel = "status"
)

// Terminal status label values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

var executionsStarted = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "executions_started_total",
		Help: "Demo executions started",
	})

var executionsFinished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "executions_finished_total",
		Help: "Demo executions finished by terminal status",
	},
	[]string{statusLabel})

var activeExecutions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "active_executions",
		Help: "Executions currently running",
	})

var phasesApplied = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "phases_applied_total",
		Help: "Load phases applied successfully",
	})

var phaseRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "phase_retries_total",
		Help: "Phase start attempts that were retried",
	})

var phaseApplySeconds = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    MetricsPrefix + "phase_apply_seconds",
		Help:    "Time to configure, scale and stabilize one phase",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

var fleetSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "fleet_size",
		Help: "Last confirmed-stable worker count",
	},
	[]string{fleetLabel})

var targetRate = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: MetricsPrefix + "target_rate",
		Help: "Aggregate records per second the current phase targets",
	})

var cleanupFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricsPrefix + "cleanup_failures_total",
		Help: "Cleanup steps that failed and were logged",
	})

func RecordExecutionStarted() {
	executionsStarted.Inc()
	activeExecutions.Inc()
}

func RecordExecutionFinished(status string) {
	executionsFinished.WithLabelValues(status).Inc()
	activeExecutions.Dec()
}

func RecordPhaseApplied(seconds float64) {
	phasesApplied.Inc()
	phaseApplySeconds.Observe(seconds)
}

func RecordPhaseRetry() {
	phaseRetries.Inc()
}

func RecordFleetSize(fleet string, size int) {
	fleetSize.WithLabelValues(fleet).Set(float64(size))
}

func RecordTargetRate(rate int) {
	targetRate.Set(float64(rate))
}

func RecordCleanupFailure() {
	cleanupFailures.Inc()
}
