// Package provider defines the control-plane surface the orchestrator needs
// from the platform hosting the stream and the worker fleet. The core never
// imports a cloud SDK; it talks to these interfaces and lets the aws and fake
// subpackages supply the behavior.
package provider

import (
	"context"
	"fmt"

	"github.com/surgeproject/surge/internal/orchestrator/domain"
)

// State is the provider-neutral lifecycle summary of a managed resource.
type State string

const (
	StatePending  State = "PENDING"
	StateActive   State = "ACTIVE"
	StateUpdating State = "UPDATING"
	StateDeleting State = "DELETING"
	StateMissing  State = "MISSING"
	StateFailed   State = "FAILED"
)

// StreamStatus is one observation of a stream's control-plane state.
type StreamStatus struct {
	State         State
	Reason        string
	Mode          domain.CapacityMode
	CapacityUnits int // provisioned capacity currently held; 0 for standard streams
}

func (s StreamStatus) ObservedState() State   { return s.State }
func (s StreamStatus) ObservedReason() string { return s.Reason }

// FleetStatus is one observation of a worker fleet. A fleet is stable when it
// is active, every requested worker is running, and no rollout is in flight.
// ActiveConfig reports the runtime configuration the fleet currently hands to
// workers, when the provider can recover it; it is how an orchestrator that
// lost its process state learns which phase was live.
type FleetStatus struct {
	State           State
	Reason          string
	DesiredWorkers  int
	RunningWorkers  int
	PendingWorkers  int
	RolloutComplete bool
	ActiveConfig    *RuntimeConfig
}

func (s FleetStatus) ObservedState() State   { return s.State }
func (s FleetStatus) ObservedReason() string { return s.Reason }

func (s FleetStatus) Stable() bool {
	return s.State == StateActive && s.RolloutComplete && s.RunningWorkers == s.DesiredWorkers
}

// FleetRef identifies one worker fleet within the provider.
type FleetRef struct {
	Cluster string `json:"cluster"`
	Service string `json:"service"`
}

func (r FleetRef) String() string {
	return fmt.Sprintf("%s/%s", r.Cluster, r.Service)
}

// RuntimeConfig is the out-of-band configuration record the fleet exposes to
// its workers: which phase is active and the publish rate each worker should
// sustain. Workers read it through their environment; the orchestrator never
// addresses workers individually.
type RuntimeConfig struct {
	ExecutionId   string
	PhaseNumber   int
	TargetRate    int // aggregate rate, recorded for observability
	PerWorkerRate int
}

// StreamAPI manages the demo stream.
type StreamAPI interface {
	CreateStream(ctx context.Context, name string) error
	DescribeStream(ctx context.Context, name string) (StreamStatus, error)
	DeleteStream(ctx context.Context, name string) error
	// SetStreamMode switches the stream between standard and provisioned-warm
	// capacity. The transition is asynchronous; callers poll DescribeStream.
	SetStreamMode(ctx context.Context, name string, mode domain.CapacityMode) error
	// SetCapacityUnits adjusts the provisioned capacity of a warm stream.
	SetCapacityUnits(ctx context.Context, name string, units int) error
}

// FleetAPI manages the worker fleet. Runtime configuration and fleet size are
// deliberately separate calls: a phase must be visible to workers before any
// new worker starts, so callers propagate config first and scale second.
type FleetAPI interface {
	DescribeFleet(ctx context.Context, ref FleetRef) (FleetStatus, error)
	// PropagateRuntimeConfig makes cfg the fleet's active runtime
	// configuration without changing the fleet size. Existing workers pick it
	// up on their next config poll; new workers start with it immediately.
	PropagateRuntimeConfig(ctx context.Context, ref FleetRef, cfg RuntimeConfig) error
	SetDesiredWorkers(ctx context.Context, ref FleetRef, count int) error
}

// AccountAPI answers account-level capability prechecks.
type AccountAPI interface {
	WarmCapacityEnabled(ctx context.Context) (bool, error)
	// EnableWarmCapacity requests the account-level capability needed for
	// provisioned-warm streams. It is an explicit operator action, never
	// called implicitly by an execution.
	EnableWarmCapacity(ctx context.Context) error
}

// MetricsAPI publishes demo lifecycle events to the provider's metrics
// backend. Publish failures must never fail a demo; callers log and move on.
type MetricsAPI interface {
	PutMetric(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

// Provider bundles the per-concern APIs for wiring. Components depend on the
// narrow interface they use, not on this bundle.
type Provider interface {
	Stream() StreamAPI
	Fleet() FleetAPI
	Account() AccountAPI
	Metrics() MetricsAPI
}
