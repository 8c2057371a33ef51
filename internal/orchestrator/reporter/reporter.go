// Package reporter publishes demo lifecycle events to the provider's metrics
// backend so a demo can be followed from a dashboard. Publishing is strictly
// best-effort: a metrics outage must never fail a demo, so every error is
// logged and dropped here.
package reporter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// Event metric names. These are an external contract: dashboards and alarms
// key on them, so they keep their historical spellings.
const (
	MetricDemoInitialized     = "DemoInitialized"
	MetricPhaseTransition     = "PhaseTransition"
	MetricTargetRate          = "TargetTPS"
	MetricWorkerCount         = "TaskCount"
	MetricDemoCompleted       = "DemoCompleted"
	MetricDemoFailed          = "DemoFailed"
	MetricDemoStopped         = "DemoStopped"
	MetricDemoDurationSeconds = "DemoDurationSeconds"
)

type Reporter struct {
	metrics provider.MetricsAPI
	fleet   provider.FleetRef
	clock   clock.PassiveClock
}

func New(metrics provider.MetricsAPI, fleet provider.FleetRef) *Reporter {
	return &Reporter{
		metrics: metrics,
		fleet:   fleet,
		clock:   clock.RealClock{},
	}
}

func (r *Reporter) DemoInitialized(ctx context.Context, executionId string) {
	r.publish(ctx, MetricDemoInitialized, 1, executionId)
}

// PhaseApplied emits the transition event together with the phase's rate and
// worker count, so graphs of target rate and fleet size line up with the
// transitions that caused them.
func (r *Reporter) PhaseApplied(ctx context.Context, executionId string, record domain.PhaseRecord) {
	r.publish(ctx, MetricPhaseTransition, float64(record.PhaseNumber), executionId)
	r.publish(ctx, MetricTargetRate, float64(record.TargetRate), executionId)
	r.publish(ctx, MetricWorkerCount, float64(record.WorkerCount), executionId)
}

func (r *Reporter) DemoCompleted(ctx context.Context, executionId string, startedAt time.Time) {
	r.publish(ctx, MetricDemoCompleted, 1, executionId)
	r.publish(ctx, MetricDemoDurationSeconds, r.clock.Since(startedAt).Seconds(), executionId)
}

func (r *Reporter) DemoFailed(ctx context.Context, executionId string) {
	r.publish(ctx, MetricDemoFailed, 1, executionId)
}

func (r *Reporter) DemoStopped(ctx context.Context, executionId string) {
	r.publish(ctx, MetricDemoStopped, 1, executionId)
}

func (r *Reporter) publish(ctx context.Context, name string, value float64, executionId string) {
	dimensions := map[string]string{
		"DemoId":      executionId,
		"ClusterName": r.fleet.Cluster,
		"ServiceName": r.fleet.Service,
	}
	if err := r.metrics.PutMetric(ctx, name, value, dimensions); err != nil {
		log.WithError(err).Warnf("failed to publish metric %s", name)
	}
}
