// Package phasecfg reads the worker's runtime assignment from the
// environment. The orchestrator hands out phase changes by rolling new task
// definition revisions whose container environment carries the assignment,
// so a worker only ever has to look at its own process environment.
package phasecfg

import (
	"github.com/spf13/viper"
)

const (
	envExecutionId    = "DEMO_ID"
	envPhaseNumber    = "DEMO_PHASE"
	envTargetRate     = "TARGET_TPS"
	envWorkerCapacity = "PER_TASK_CAPACITY"
)

// Assignment is what a worker has been asked to do for the current phase.
type Assignment struct {
	// ExecutionId identifies the demo run the assignment belongs to.
	ExecutionId string
	PhaseNumber int
	// TargetRate is this worker's share of the phase rate, in posts per second.
	TargetRate int
	// WorkerCapacity is the most a single task is allowed to produce.
	WorkerCapacity int
}

// EffectiveRate caps the assigned rate at the task's capacity.
func (a Assignment) EffectiveRate() int {
	if a.TargetRate > a.WorkerCapacity {
		return a.WorkerCapacity
	}
	return a.TargetRate
}

// Source reads assignments live from the environment.
type Source struct {
	v *viper.Viper
}

func NewSource() *Source {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(envExecutionId, "")
	v.SetDefault(envPhaseNumber, 1)
	v.SetDefault(envTargetRate, 100)
	v.SetDefault(envWorkerCapacity, 1000)
	return &Source{v: v}
}

// Read returns the current assignment. Values are read on every call rather
// than cached, so local runs can steer a worker by exporting new values.
func (s *Source) Read() Assignment {
	return Assignment{
		ExecutionId:    s.v.GetString(envExecutionId),
		PhaseNumber:    s.v.GetInt(envPhaseNumber),
		TargetRate:     s.v.GetInt(envTargetRate),
		WorkerCapacity: s.v.GetInt(envWorkerCapacity),
	}
}
