// Package fleet sizes the worker fleet and hands it per-phase runtime
// configuration. It owns every fleet write in the system.
package fleet

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/poller"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// ComputeWorkerCount returns the number of workers needed to sustain
// targetRate given each worker's capacity, clamped to [min, max].
// perWorkerCapacity must be positive.
func ComputeWorkerCount(targetRate int, perWorkerCapacity int, min int, max int) int {
	count := 0
	if targetRate > 0 {
		count = (targetRate + perWorkerCapacity - 1) / perWorkerCapacity
	}
	if count < min {
		count = min
	}
	if count > max {
		count = max
	}
	return count
}

type Scaler struct {
	fleets provider.FleetAPI
	poller *poller.Poller
	config configuration.FleetConfiguration
}

func NewScaler(fleets provider.FleetAPI, statusPoller *poller.Poller, config configuration.FleetConfiguration) *Scaler {
	return &Scaler{
		fleets: fleets,
		poller: statusPoller,
		config: config,
	}
}

// PropagatePhaseConfig makes the phase's runtime configuration the one the
// fleet hands to its workers. It must be called before ApplyFleetSize for the
// same phase: workers launched by the subsequent scale-up read this
// configuration at startup, and launching them against the previous phase's
// values is a silent correctness bug.
func (s *Scaler) PropagatePhaseConfig(ctx context.Context, executionId string, command domain.RateCommand) error {
	ref := s.config.Ref()
	cfg := provider.RuntimeConfig{
		ExecutionId:   executionId,
		PhaseNumber:   command.PhaseNumber,
		TargetRate:    command.TargetRate,
		PerWorkerRate: command.PerWorkerRate,
	}
	if err := s.fleets.PropagateRuntimeConfig(ctx, ref, cfg); err != nil {
		return errors.Wrapf(err, "propagating phase %d configuration to fleet %s", command.PhaseNumber, ref)
	}
	log.WithField("fleet", ref.String()).
		Infof("phase %d configuration propagated: %d records/s total, %d per worker",
			command.PhaseNumber, command.TargetRate, command.PerWorkerRate)
	return nil
}

// ApplyFleetSize requests the fleet run the desired number of workers, then
// waits for the fleet to report stable at that size. On timeout it fails with
// ErrStabilizationTimeout carrying the last observed running count, and does
// not roll back: a converging fleet is not necessarily wrong, only slow, so
// the caller decides whether to proceed or abort.
func (s *Scaler) ApplyFleetSize(ctx context.Context, desired int) error {
	if desired < 0 {
		return &surgeerrors.ErrInvalidArgument{
			Name:    "desired",
			Value:   desired,
			Message: "fleet size cannot be negative",
		}
	}

	ref := s.config.Ref()
	if err := s.fleets.SetDesiredWorkers(ctx, ref, desired); err != nil {
		return errors.Wrapf(err, "scaling fleet %s to %d workers", ref, desired)
	}
	log.WithField("fleet", ref.String()).Infof("requested %d workers; waiting for stabilization", desired)

	lastRunning := 0
	_, err := poller.Await(ctx, s.poller, poller.Spec[provider.FleetStatus]{
		ResourceType: "fleet",
		ResourceName: ref.String(),
		Query: func(ctx context.Context) (provider.FleetStatus, error) {
			status, err := s.fleets.DescribeFleet(ctx, ref)
			if err != nil {
				return status, err
			}
			lastRunning = status.RunningWorkers
			// An active fleet that has not yet converged on the requested
			// size, or is mid-rollout, is still updating from our point of view.
			if status.State == provider.StateActive && (!status.Stable() || status.DesiredWorkers != desired) {
				status.State = provider.StateUpdating
			}
			return status, nil
		},
		Targets:  []provider.State{provider.StateActive},
		Failures: []provider.State{provider.StateFailed, provider.StateMissing},
		Timeout:  s.config.StabilizationTimeout,
		Interval: s.config.PollInterval,
	})
	if err != nil {
		var pollTimeout *surgeerrors.ErrPollTimeout
		if errors.As(err, &pollTimeout) {
			return &surgeerrors.ErrStabilizationTimeout{
				Fleet:   ref.String(),
				Desired: desired,
				Running: lastRunning,
				Waited:  s.config.StabilizationTimeout,
			}
		}
		return err
	}

	log.WithField("fleet", ref.String()).Infof("fleet stable at %d workers", desired)
	return nil
}

// Describe reports the fleet's live status. It is the read side used for
// state resynchronization; it never mutates.
func (s *Scaler) Describe(ctx context.Context) (provider.FleetStatus, error) {
	status, err := s.fleets.DescribeFleet(ctx, s.config.Ref())
	if err != nil {
		return provider.FleetStatus{}, errors.Wrapf(err, "describing fleet %s", s.config.Ref())
	}
	return status, nil
}
