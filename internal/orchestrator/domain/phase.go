package domain

import (
	"time"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
)

// PhaseSpec describes one load phase of a demo: hold the aggregate publish
// rate at TargetRate for Duration, then move on. Phases are declared up front
// and validated before any resource is touched.
type PhaseSpec struct {
	PhaseNumber int           `json:"phase_number"`
	TargetRate  int           `json:"target_rate"`
	Duration    time.Duration `json:"duration"`
}

// RateCommand is the per-phase instruction handed to the fleet: how many
// workers to run and what share of the aggregate rate each one carries.
// It is derived from a PhaseSpec and the computed worker count and is never
// stored; DemoState records the outcome instead.
type RateCommand struct {
	PhaseNumber   int
	TargetRate    int
	WorkerCount   int
	PerWorkerRate int
}

func DeriveRateCommand(phase PhaseSpec, workerCount int) RateCommand {
	perWorker := 1
	if workerCount > 0 {
		perWorker = phase.TargetRate / workerCount
		if perWorker < 1 {
			perWorker = 1
		}
	}
	return RateCommand{
		PhaseNumber:   phase.PhaseNumber,
		TargetRate:    phase.TargetRate,
		WorkerCount:   workerCount,
		PerWorkerRate: perWorker,
	}
}

// ValidatePhases checks a phase list before an execution starts. Rates must
// be positive, durations non-negative, and phase numbers strictly increasing
// so that history and metrics are unambiguous.
func ValidatePhases(phases []PhaseSpec) error {
	if len(phases) == 0 {
		return &surgeerrors.ErrInvalidArgument{
			Name:    "phases",
			Value:   phases,
			Message: "at least one phase is required",
		}
	}
	lastNumber := 0
	for _, phase := range phases {
		if phase.TargetRate <= 0 {
			return &surgeerrors.ErrInvalidArgument{
				Name:    "targetRate",
				Value:   phase.TargetRate,
				Message: "target rate must be positive",
			}
		}
		if phase.Duration < 0 {
			return &surgeerrors.ErrInvalidArgument{
				Name:    "duration",
				Value:   phase.Duration,
				Message: "phase duration cannot be negative",
			}
		}
		if phase.PhaseNumber <= lastNumber {
			return &surgeerrors.ErrInvalidArgument{
				Name:    "phaseNumber",
				Value:   phase.PhaseNumber,
				Message: "phase numbers must be positive and strictly increasing",
			}
		}
		lastNumber = phase.PhaseNumber
	}
	return nil
}
