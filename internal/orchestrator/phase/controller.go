// Package phase applies a single load phase to the fleet: compute the worker
// count for the phase's rate, propagate the phase configuration, scale, and
// wait for stability.
package phase

import (
	"context"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/fleet"
)

// FleetController is the slice of the fleet scaler the controller drives.
type FleetController interface {
	PropagatePhaseConfig(ctx context.Context, executionId string, command domain.RateCommand) error
	ApplyFleetSize(ctx context.Context, desired int) error
}

type Controller struct {
	fleet  FleetController
	config configuration.FleetConfiguration
	clock  clock.PassiveClock
}

func NewController(fleetController FleetController, config configuration.FleetConfiguration) *Controller {
	return &Controller{
		fleet:  fleetController,
		config: config,
		clock:  clock.RealClock{},
	}
}

// Run applies one phase on top of the prior state and returns the advanced
// state. On any error the prior state is returned unchanged: a fleet size is
// recorded only once stabilization has confirmed it, so callers never observe
// an in-flight value.
//
// Configuration is always propagated before the fleet is scaled. Workers
// launched by the scale-up read the phase configuration at startup; reversing
// the order would let them start against the previous phase's values.
func (c *Controller) Run(ctx context.Context, phase domain.PhaseSpec, prior domain.DemoState) (domain.DemoState, error) {
	workerCount := fleet.ComputeWorkerCount(
		phase.TargetRate, c.config.PerWorkerCapacity, c.config.MinWorkers, c.config.MaxWorkers)
	command := domain.DeriveRateCommand(phase, workerCount)
	log.WithField("execution", prior.ExecutionId).
		Infof("phase %d: %d records/s across %d workers (%d per worker)",
			command.PhaseNumber, command.TargetRate, command.WorkerCount, command.PerWorkerRate)

	if err := c.fleet.PropagatePhaseConfig(ctx, prior.ExecutionId, command); err != nil {
		return prior, err
	}
	if err := c.fleet.ApplyFleetSize(ctx, command.WorkerCount); err != nil {
		return prior, err
	}

	record := domain.PhaseRecord{
		PhaseNumber: command.PhaseNumber,
		TargetRate:  command.TargetRate,
		WorkerCount: command.WorkerCount,
		AppliedAt:   c.clock.Now(),
	}
	return prior.WithPhaseApplied(record), nil
}
