package configuration

import (
	"time"

	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

type Configuration struct {
	// Port used to expose the health endpoint
	HttpPort uint16 `validate:"required"`
	// Port used to expose prometheus metrics
	MetricsPort uint16 `validate:"required"`
	Provider    ProviderConfiguration
	Stream      StreamConfiguration
	Fleet       FleetConfiguration
	Demo        DemoConfiguration
}

type ProviderConfiguration struct {
	// Valid types are "aws" or "fake"
	Type string `validate:"required,oneof=aws fake"`
	// Region the stream and fleet live in; resolved from the environment if empty
	Region string
	// Namespace demo lifecycle events are published under
	MetricsNamespace string `validate:"required"`
}

type StreamConfiguration struct {
	Name string `validate:"required"`
	// Capacity mode the stream is provisioned in at demo start
	CapacityMode domain.CapacityMode `validate:"required"`
	// Capacity units held when CapacityMode is PROVISIONED_WARM
	WarmCapacityUnits int
	// Bound on stream creation and deletion waits
	OperationTimeout time.Duration `validate:"required"`
	// Bound on warm capacity convergence
	WarmCapacityTimeout time.Duration `validate:"required"`
	// Stream status is polled at this interval; stream transitions are slow,
	// so this is longer than the fleet interval
	PollInterval time.Duration `validate:"required"`
}

type FleetConfiguration struct {
	Cluster string `validate:"required"`
	Service string `validate:"required"`
	// Records per second one worker can sustain
	PerWorkerCapacity int `validate:"required"`
	MinWorkers        int `validate:"gte=0"`
	MaxWorkers        int `validate:"required"`
	// Bound on the fleet converging after a scaling update
	StabilizationTimeout time.Duration `validate:"required"`
	PollInterval         time.Duration `validate:"required"`
}

type DemoConfiguration struct {
	// Load phases applied in order
	Phases []domain.PhaseSpec `validate:"required,min=1"`
	Retry  RetryConfiguration
}

// RetryConfiguration bounds how often a failed phase start is reattempted.
// Delays grow exponentially from InitialDelay up to MaxDelay.
type RetryConfiguration struct {
	MaxAttempts  uint          `validate:"required"`
	InitialDelay time.Duration `validate:"required"`
	MaxDelay     time.Duration `validate:"required"`
}

func (c FleetConfiguration) Ref() provider.FleetRef {
	return provider.FleetRef{Cluster: c.Cluster, Service: c.Service}
}
