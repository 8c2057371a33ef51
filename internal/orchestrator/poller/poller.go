// Package poller implements the bounded-wait polling primitive the rest of
// the orchestrator is built on. Cloud resources converge asynchronously;
// every "wait for X" in this codebase is an Await call with a resource
// specific query, target set, and bound.
package poller

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// Observation is any status snapshot that can report the lifecycle state it
// was taken in. provider.StreamStatus and provider.FleetStatus implement it.
type Observation interface {
	ObservedState() provider.State
	ObservedReason() string
}

// Spec describes one bounded wait. Query must be an idempotent read; Await
// performs no side effects beyond calling it, so a failed wait is always safe
// to retry.
type Spec[S Observation] struct {
	// ResourceType and ResourceName appear in errors and logs, e.g. "stream"/"posts".
	ResourceType string
	ResourceName string
	Query        func(ctx context.Context) (S, error)
	// Targets is the set of states that complete the wait successfully.
	Targets []provider.State
	// Failures is the set of states from which a target state is unreachable.
	Failures []provider.State
	Timeout  time.Duration
	Interval time.Duration
}

// Poller runs bounded waits against an injected clock so tests control time.
type Poller struct {
	clock clock.Clock
}

func New() *Poller {
	return &Poller{clock: clock.RealClock{}}
}

func NewWithClock(clk clock.Clock) *Poller {
	return &Poller{clock: clk}
}

// Await queries immediately, then at every Interval until the observed state
// is in Targets (returns the observation), in Failures (returns
// ErrResourceFailed), or Timeout elapses (returns ErrPollTimeout carrying the
// last observed state). A query error is treated as a transient observation
// gap: it is logged and the wait continues, since control planes throttle and
// blip under exactly the load this system generates. Cancellation is checked
// before every query and during every sleep.
func Await[S Observation](ctx context.Context, p *Poller, spec Spec[S]) (S, error) {
	var zero S
	if err := validate(spec); err != nil {
		return zero, err
	}

	deadline := p.clock.Now().Add(spec.Timeout)
	lastState := provider.State("UNKNOWN")
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		observation, err := spec.Query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			log.WithError(err).
				WithField("resource", spec.ResourceName).
				Warnf("failed to read %s status; will retry", spec.ResourceType)
		} else {
			lastState = observation.ObservedState()
			log.WithField("resource", spec.ResourceName).
				Debugf("%s is %s", spec.ResourceType, lastState)
			if stateIn(lastState, spec.Targets) {
				return observation, nil
			}
			if stateIn(lastState, spec.Failures) {
				return zero, &surgeerrors.ErrResourceFailed{
					Type:   spec.ResourceType,
					Name:   spec.ResourceName,
					State:  string(lastState),
					Reason: observation.ObservedReason(),
				}
			}
		}

		if !p.clock.Now().Add(spec.Interval).Before(deadline) {
			return zero, &surgeerrors.ErrPollTimeout{
				Type:      spec.ResourceType,
				Name:      spec.ResourceName,
				Target:    targetsString(spec.Targets),
				LastState: string(lastState),
				Waited:    spec.Timeout,
			}
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-p.clock.After(spec.Interval):
		}
	}
}

func validate[S Observation](spec Spec[S]) error {
	if spec.Query == nil {
		return &surgeerrors.ErrInvalidArgument{Name: "query", Value: nil, Message: "a query is required"}
	}
	if len(spec.Targets) == 0 {
		return &surgeerrors.ErrInvalidArgument{Name: "targets", Value: spec.Targets, Message: "at least one target state is required"}
	}
	if spec.Timeout <= 0 {
		return &surgeerrors.ErrInvalidArgument{Name: "timeout", Value: spec.Timeout, Message: "timeout must be positive"}
	}
	if spec.Interval <= 0 {
		return &surgeerrors.ErrInvalidArgument{Name: "interval", Value: spec.Interval, Message: "interval must be positive"}
	}
	return nil
}

func stateIn(state provider.State, states []provider.State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func targetsString(states []provider.State) string {
	s := ""
	for i, state := range states {
		if i > 0 {
			s += "|"
		}
		s += string(state)
	}
	return s
}
