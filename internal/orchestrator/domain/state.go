package domain

import (
	"time"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
)

// CapacityMode describes how a stream provisions throughput. Standard streams
// scale reactively; provisioned-warm streams hold a fixed number of capacity
// units so a demo can absorb its first spike without waiting for scale-up.
type CapacityMode string

const (
	CapacityModeStandard        CapacityMode = "STANDARD"
	CapacityModeProvisionedWarm CapacityMode = "PROVISIONED_WARM"
)

// Bounds on warm capacity units, validated before any provider call.
const (
	MinWarmCapacityUnits = 1
	MaxWarmCapacityUnits = 10240
)

func ParseCapacityMode(s string) (CapacityMode, error) {
	switch CapacityMode(s) {
	case CapacityModeStandard:
		return CapacityModeStandard, nil
	case CapacityModeProvisionedWarm:
		return CapacityModeProvisionedWarm, nil
	default:
		return "", &surgeerrors.ErrInvalidArgument{
			Name:    "capacityMode",
			Value:   s,
			Message: "must be STANDARD or PROVISIONED_WARM",
		}
	}
}

func ValidateWarmCapacityUnits(units int) error {
	if units < MinWarmCapacityUnits || units > MaxWarmCapacityUnits {
		return &surgeerrors.ErrInvalidArgument{
			Name:    "warmCapacityUnits",
			Value:   units,
			Message: "must be between 1 and 10240",
		}
	}
	return nil
}

// PhaseRecord is the history entry appended once a phase has been fully
// applied (config propagated, fleet stable at the new size).
type PhaseRecord struct {
	PhaseNumber int       `json:"phase_number"`
	TargetRate  int       `json:"target_rate"`
	WorkerCount int       `json:"worker_count"`
	AppliedAt   time.Time `json:"applied_at"`
}

// DemoState is the authoritative record of what a demo execution has applied
// so far. It is threaded by value through the phase controller: a phase that
// fails leaves the caller holding the prior state untouched. FleetSize only
// ever holds sizes that were confirmed stable; a requested-but-unconfirmed
// size is never recorded.
type DemoState struct {
	ExecutionId       string        `json:"execution_id"`
	StartedAt         time.Time     `json:"started_at"`
	CurrentPhase      *int          `json:"current_phase,omitempty"`
	FleetSize         int           `json:"fleet_size"`
	StreamName        string        `json:"stream_name"`
	StreamMode        CapacityMode  `json:"stream_capacity_mode"`
	WarmCapacityUnits *int          `json:"warm_capacity_units,omitempty"`
	History           []PhaseRecord `json:"history,omitempty"`
}

func NewDemoState(executionId string, streamName string, startedAt time.Time) DemoState {
	return DemoState{
		ExecutionId: executionId,
		StartedAt:   startedAt,
		StreamName:  streamName,
		StreamMode:  CapacityModeStandard,
	}
}

// DeepCopy returns a state that shares no mutable memory with the receiver.
func (s DemoState) DeepCopy() DemoState {
	c := s
	if s.CurrentPhase != nil {
		phase := *s.CurrentPhase
		c.CurrentPhase = &phase
	}
	if s.WarmCapacityUnits != nil {
		units := *s.WarmCapacityUnits
		c.WarmCapacityUnits = &units
	}
	if s.History != nil {
		c.History = make([]PhaseRecord, len(s.History))
		copy(c.History, s.History)
	}
	return c
}

// WithPhaseApplied returns a copy of the state advanced past one phase.
// The receiver is not modified.
func (s DemoState) WithPhaseApplied(record PhaseRecord) DemoState {
	c := s.DeepCopy()
	phase := record.PhaseNumber
	c.CurrentPhase = &phase
	c.FleetSize = record.WorkerCount
	c.History = append(c.History, record)
	return c
}

// WithWarmCapacity returns a copy of the state recording that the stream is
// holding warm capacity.
func (s DemoState) WithWarmCapacity(units int) DemoState {
	c := s.DeepCopy()
	c.StreamMode = CapacityModeProvisionedWarm
	c.WarmCapacityUnits = &units
	return c
}
