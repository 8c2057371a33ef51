package phasecfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRead_DefaultsWhenNothingIsSet(t *testing.T) {
	source := NewSource()

	assignment := source.Read()
	assert.Equal(t, Assignment{
		PhaseNumber:    1,
		TargetRate:     100,
		WorkerCapacity: 1000,
	}, assignment)
}

func TestRead_ReadsTheEnvironment(t *testing.T) {
	t.Setenv("DEMO_ID", "01gv3z9f7q")
	t.Setenv("DEMO_PHASE", "2")
	t.Setenv("TARGET_TPS", "3448")
	t.Setenv("PER_TASK_CAPACITY", "3500")

	assignment := NewSource().Read()
	assert.Equal(t, Assignment{
		ExecutionId:    "01gv3z9f7q",
		PhaseNumber:    2,
		TargetRate:     3448,
		WorkerCapacity: 3500,
	}, assignment)
}

func TestRead_PicksUpChangesWithoutARestart(t *testing.T) {
	t.Setenv("DEMO_PHASE", "2")
	source := NewSource()
	assert.Equal(t, 2, source.Read().PhaseNumber)

	t.Setenv("DEMO_PHASE", "3")
	t.Setenv("TARGET_TPS", "500000")
	assignment := source.Read()
	assert.Equal(t, 3, assignment.PhaseNumber)
	assert.Equal(t, 500000, assignment.TargetRate)
}

func TestEffectiveRate_CapsAtWorkerCapacity(t *testing.T) {
	assert.Equal(t, 3448,
		Assignment{TargetRate: 3448, WorkerCapacity: 3500}.EffectiveRate())
	assert.Equal(t, 3500,
		Assignment{TargetRate: 500000, WorkerCapacity: 3500}.EffectiveRate())
	assert.Equal(t, 0,
		Assignment{TargetRate: 0, WorkerCapacity: 3500}.EffectiveRate())
}
