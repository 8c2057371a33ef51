// Package orchestrator drives demo executions end to end: ensure the stream,
// step through the load phases, hold each one for its dwell, then always
// clean up. It coordinates the stream manager, fleet scaler and phase
// controller but owns no provider calls of its own.
package orchestrator

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/metrics"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
	"github.com/surgeproject/surge/internal/orchestrator/stream"
)

// ExecutionStatus is the lifecycle stage of one demo execution.
type ExecutionStatus string

const (
	StatusInitializing ExecutionStatus = "INITIALIZING"
	StatusRunningPhase ExecutionStatus = "RUNNING_PHASE"
	StatusWaiting      ExecutionStatus = "WAITING"
	StatusCleaningUp   ExecutionStatus = "CLEANING_UP"
	StatusCompleted    ExecutionStatus = "COMPLETED"
	StatusFailed       ExecutionStatus = "FAILED"
	StatusStopped      ExecutionStatus = "STOPPED"
)

// Terminal reports whether the status is an end state.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Result is the terminal outcome of an execution. State carries the last
// confirmed demo state, which on failure is the state before the failed
// phase, never a partially applied one.
type Result struct {
	Status      ExecutionStatus
	State       domain.DemoState
	FailedPhase *int
	Err         error
}

// ProgressFunc observes status transitions during a run. Implementations
// must copy the state if they retain it past the call.
type ProgressFunc func(status ExecutionStatus, state domain.DemoState)

// StreamManager is the slice of the stream manager the orchestrator drives.
type StreamManager interface {
	EnsureStream(ctx context.Context, name string) (stream.Handle, error)
	SetWarmCapacity(ctx context.Context, handle stream.Handle, units int) (stream.Handle, error)
	TeardownStream(ctx context.Context, handle stream.Handle) error
	Describe(ctx context.Context, name string) (provider.StreamStatus, error)
}

// FleetScaler is the slice of the fleet scaler the orchestrator drives
// directly; per-phase scaling goes through the PhaseRunner instead.
type FleetScaler interface {
	ApplyFleetSize(ctx context.Context, desired int) error
	Describe(ctx context.Context) (provider.FleetStatus, error)
}

// PhaseRunner applies one phase on top of the prior state.
type PhaseRunner interface {
	Run(ctx context.Context, phase domain.PhaseSpec, prior domain.DemoState) (domain.DemoState, error)
}

// EventReporter publishes execution milestones to the external metrics sink.
type EventReporter interface {
	DemoInitialized(ctx context.Context, executionId string)
	PhaseApplied(ctx context.Context, executionId string, record domain.PhaseRecord)
	DemoCompleted(ctx context.Context, executionId string, startedAt time.Time)
	DemoFailed(ctx context.Context, executionId string)
	DemoStopped(ctx context.Context, executionId string)
}

type Orchestrator struct {
	streams StreamManager
	fleet   FleetScaler
	phases  PhaseRunner
	events  EventReporter
	config  configuration.Configuration
	clock   clock.Clock
}

func New(
	streams StreamManager,
	fleet FleetScaler,
	phases PhaseRunner,
	events EventReporter,
	config configuration.Configuration,
) *Orchestrator {
	return &Orchestrator{
		streams: streams,
		fleet:   fleet,
		phases:  phases,
		events:  events,
		config:  config,
		clock:   clock.RealClock{},
	}
}

// Run drives one execution to a terminal status. Cleanup always happens
// before Run returns, whatever the outcome: the demo provisions capacity that
// bills by the hour, so no exit path may leave it behind. Cancelling ctx
// requests a stop; a stopped execution still cleans up and finishes Stopped,
// never Completed.
func (o *Orchestrator) Run(ctx context.Context, executionId string, progress ProgressFunc) Result {
	state := domain.NewDemoState(executionId, o.config.Stream.Name, o.clock.Now())
	report := func(status ExecutionStatus) {
		if progress != nil {
			progress(status, state)
		}
	}

	log.WithField("execution", executionId).
		Infof("starting demo against stream %s with %d phases", state.StreamName, len(o.config.Demo.Phases))
	metrics.RecordExecutionStarted()
	report(StatusInitializing)

	if err := domain.ValidatePhases(o.config.Demo.Phases); err != nil {
		return o.finish(state, nil, err, progress)
	}

	state, err := o.initialize(ctx, state)
	if err != nil {
		return o.finish(state, nil, err, progress)
	}
	o.events.DemoInitialized(ctx, executionId)

	for _, p := range o.config.Demo.Phases {
		report(StatusRunningPhase)
		next, err := o.runPhase(ctx, p, state)
		if err != nil {
			phaseNumber := p.PhaseNumber
			return o.finish(state, &phaseNumber, err, progress)
		}
		state = next
		o.events.PhaseApplied(ctx, executionId, state.History[len(state.History)-1])
		metrics.RecordFleetSize(o.config.Fleet.Ref().String(), state.FleetSize)
		metrics.RecordTargetRate(p.TargetRate)

		report(StatusWaiting)
		if err := o.wait(ctx, p); err != nil {
			return o.finish(state, nil, err, progress)
		}
	}
	return o.finish(state, nil, nil, progress)
}

// initialize brings up the prerequisites for phase one: the stream active
// (warmed if configured), the fleet present and at rest.
func (o *Orchestrator) initialize(ctx context.Context, state domain.DemoState) (domain.DemoState, error) {
	handle, err := o.streams.EnsureStream(ctx, state.StreamName)
	if err != nil {
		return state, errors.WithMessage(err, "ensuring stream")
	}
	if handle.Mode == domain.CapacityModeProvisionedWarm {
		state = state.WithWarmCapacity(handle.CapacityUnits)
	} else {
		state.StreamMode = handle.Mode
	}

	if o.config.Stream.CapacityMode == domain.CapacityModeProvisionedWarm {
		handle, err = o.streams.SetWarmCapacity(ctx, handle, o.config.Stream.WarmCapacityUnits)
		if err != nil {
			return state, errors.WithMessage(err, "setting warm capacity")
		}
		state = state.WithWarmCapacity(handle.CapacityUnits)
	}

	status, err := o.fleet.Describe(ctx)
	if err != nil {
		return state, errors.WithMessage(err, "describing fleet")
	}
	if status.State == provider.StateMissing {
		return state, &surgeerrors.ErrResourceFailed{
			Type:   "fleet",
			Name:   o.config.Fleet.Ref().String(),
			State:  string(provider.StateMissing),
			Reason: "the worker fleet must exist before a demo can run",
		}
	}
	if status.DesiredWorkers != 0 || status.RunningWorkers != 0 {
		log.Infof("fleet %s has %d workers running; scaling to rest before the first phase",
			o.config.Fleet.Ref(), status.RunningWorkers)
		if err := o.fleet.ApplyFleetSize(ctx, 0); err != nil {
			return state, errors.WithMessage(err, "bringing fleet to rest")
		}
	}
	return state, nil
}

// runPhase applies one phase with retries. Only errors the phase controller
// reports as transient are retried, and never once a stop has been requested.
// On failure the prior state is returned unchanged.
func (o *Orchestrator) runPhase(ctx context.Context, p domain.PhaseSpec, prior domain.DemoState) (domain.DemoState, error) {
	result := prior
	start := o.clock.Now()
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			next, err := o.phases.Run(ctx, p, prior)
			if err != nil {
				return err
			}
			result = next
			return nil
		},
		retry.Attempts(o.config.Demo.Retry.MaxAttempts),
		retry.Delay(o.config.Demo.Retry.InitialDelay),
		retry.MaxDelay(o.config.Demo.Retry.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && surgeerrors.IsRetryable(err)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			metrics.RecordPhaseRetry()
			log.WithError(err).WithField("execution", prior.ExecutionId).
				Warnf("phase %d attempt %d failed; retrying", p.PhaseNumber, attempt+1)
		}),
	)
	if err != nil {
		return prior, err
	}
	metrics.RecordPhaseApplied(o.clock.Since(start).Seconds())
	return result, nil
}

const waitSlice = time.Second

// wait holds the applied phase for its dwell. Nothing is polled during the
// dwell; sleeping in short slices keeps stop requests prompt.
func (o *Orchestrator) wait(ctx context.Context, p domain.PhaseSpec) error {
	if p.Duration <= 0 {
		return nil
	}
	log.Infof("holding phase %d for %s", p.PhaseNumber, p.Duration)
	deadline := o.clock.Now().Add(p.Duration)
	for {
		remaining := deadline.Sub(o.clock.Now())
		if remaining <= 0 {
			return nil
		}
		slice := waitSlice
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.clock.After(slice):
		}
	}
}

// finish runs cleanup and classifies the outcome. Cleanup gets its own
// bounded context because the run context is typically already cancelled on
// the stop path.
func (o *Orchestrator) finish(state domain.DemoState, failedPhase *int, runErr error, progress ProgressFunc) Result {
	report := func(status ExecutionStatus) {
		if progress != nil {
			progress(status, state)
		}
	}
	report(StatusCleaningUp)

	cleanupCtx, cancel := context.WithTimeout(context.Background(), o.cleanupBudget())
	defer cancel()
	if err := o.Cleanup(cleanupCtx); err != nil {
		metrics.RecordCleanupFailure()
		log.WithError(err).WithField("execution", state.ExecutionId).
			Error("cleanup did not fully succeed; resources may still be provisioned")
	}
	metrics.RecordFleetSize(o.config.Fleet.Ref().String(), 0)
	metrics.RecordTargetRate(0)

	logger := log.WithField("execution", state.ExecutionId)
	switch {
	case runErr == nil:
		o.events.DemoCompleted(cleanupCtx, state.ExecutionId, state.StartedAt)
		metrics.RecordExecutionFinished(metrics.StatusCompleted)
		report(StatusCompleted)
		logger.Infof("demo completed: %d phases applied in %s",
			len(state.History), o.clock.Since(state.StartedAt).Round(time.Second))
		return Result{Status: StatusCompleted, State: state}
	case isStopRequest(runErr):
		o.events.DemoStopped(cleanupCtx, state.ExecutionId)
		metrics.RecordExecutionFinished(metrics.StatusStopped)
		report(StatusStopped)
		logger.Info("demo stopped on request")
		return Result{Status: StatusStopped, State: state, Err: runErr}
	default:
		o.events.DemoFailed(cleanupCtx, state.ExecutionId)
		metrics.RecordExecutionFinished(metrics.StatusFailed)
		report(StatusFailed)
		if failedPhase != nil {
			logger.WithError(runErr).
				Errorf("demo failed during phase %d; fleet last confirmed at %d workers", *failedPhase, state.FleetSize)
		} else {
			logger.WithError(runErr).Error("demo failed")
		}
		return Result{Status: StatusFailed, State: state, FailedPhase: failedPhase, Err: runErr}
	}
}

// Cleanup returns the resource pair to rest: the fleet scaled to zero and the
// stream removed. It is idempotent and safe against resources that were never
// created. Both steps are always attempted; failures are aggregated.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	var result *multierror.Error

	status, err := o.fleet.Describe(ctx)
	switch {
	case err != nil:
		result = multierror.Append(result, errors.WithMessage(err, "describing fleet"))
	case status.State == provider.StateMissing:
		log.Infof("fleet %s absent; nothing to scale down", o.config.Fleet.Ref())
	case status.DesiredWorkers == 0 && status.RunningWorkers == 0:
		log.Infof("fleet %s already at rest", o.config.Fleet.Ref())
	default:
		if err := o.fleet.ApplyFleetSize(ctx, 0); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, "scaling fleet to zero"))
		}
	}

	if err := o.streams.TeardownStream(ctx, stream.Handle{Name: o.config.Stream.Name}); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "tearing down stream"))
	}
	return result.ErrorOrNil()
}

// Resynchronize rebuilds a state snapshot from the live resources. External
// state is the source of truth after a restart; nothing held in memory is
// trusted. The start time is not recoverable and is left zero.
func (o *Orchestrator) Resynchronize(ctx context.Context) (domain.DemoState, error) {
	state := domain.DemoState{
		StreamName: o.config.Stream.Name,
		StreamMode: domain.CapacityModeStandard,
	}

	streamStatus, err := o.streams.Describe(ctx, o.config.Stream.Name)
	if err != nil {
		return state, err
	}
	if streamStatus.State != provider.StateMissing {
		state.StreamMode = streamStatus.Mode
		if streamStatus.Mode == domain.CapacityModeProvisionedWarm && streamStatus.CapacityUnits > 0 {
			units := streamStatus.CapacityUnits
			state.WarmCapacityUnits = &units
		}
	}

	fleetStatus, err := o.fleet.Describe(ctx)
	if err != nil {
		return state, err
	}
	if fleetStatus.State != provider.StateMissing {
		state.FleetSize = fleetStatus.RunningWorkers
		if cfg := fleetStatus.ActiveConfig; cfg != nil {
			state.ExecutionId = cfg.ExecutionId
			if cfg.PhaseNumber > 0 {
				phase := cfg.PhaseNumber
				state.CurrentPhase = &phase
			}
		}
	}
	return state, nil
}

func (o *Orchestrator) cleanupBudget() time.Duration {
	return o.config.Stream.OperationTimeout + o.config.Fleet.StabilizationTimeout + time.Minute
}

func isStopRequest(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
