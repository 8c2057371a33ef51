package fleet

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/poller"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

func TestComputeWorkerCount(t *testing.T) {
	tests := map[string]struct {
		targetRate        int
		perWorkerCapacity int
		min               int
		max               int
		want              int
	}{
		"small rate needs one worker":    {100, 1000, 1, 50, 1},
		"exact multiple":                 {10000, 1000, 1, 50, 10},
		"one over a multiple rounds up":  {10001, 1000, 1, 50, 11},
		"one under a multiple":           {9999, 1000, 1, 50, 10},
		"clamped to max":                 {10000000, 1000, 1, 50, 50},
		"clamped to min":                 {1, 1000, 3, 50, 3},
		"zero rate clamps to min":        {0, 1000, 1, 50, 1},
		"default worker capacity":        {500000, 3500, 1, 200, 143},
		"rate below capacity of one":     {3499, 3500, 1, 50, 1},
		"rate exactly capacity of one":   {3500, 3500, 1, 50, 1},
		"rate just above capacity of 1":  {3501, 3500, 1, 50, 2},
		"min equals max pins the answer": {10000, 1000, 5, 5, 5},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := ComputeWorkerCount(tc.targetRate, tc.perWorkerCapacity, tc.min, tc.max)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeWorkerCount_MonotonicAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		perWorkerCapacity := 1 + rng.Intn(5000)
		min := rng.Intn(10)
		max := min + rng.Intn(100)
		lowRate := rng.Intn(1000000)
		highRate := lowRate + rng.Intn(1000000)

		low := ComputeWorkerCount(lowRate, perWorkerCapacity, min, max)
		high := ComputeWorkerCount(highRate, perWorkerCapacity, min, max)

		assert.GreaterOrEqual(t, high, low,
			"count must not decrease as rate grows (capacity=%d min=%d max=%d rates=%d,%d)",
			perWorkerCapacity, min, max, lowRate, highRate)
		for _, got := range []int{low, high} {
			assert.GreaterOrEqual(t, got, min)
			assert.LessOrEqual(t, got, max)
		}
	}
}

func TestApplyFleetSize_WaitsForStability(t *testing.T) {
	fleets := &fakeFleetAPI{statuses: []provider.FleetStatus{
		{State: provider.StateActive, DesiredWorkers: 10, RunningWorkers: 4, RolloutComplete: false},
		{State: provider.StateActive, DesiredWorkers: 10, RunningWorkers: 10, RolloutComplete: false},
		{State: provider.StateActive, DesiredWorkers: 10, RunningWorkers: 10, RolloutComplete: true},
	}}
	scaler := newTestScaler(fleets)

	err := scaler.ApplyFleetSize(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, []int{10}, fleets.desiredSets)
	// Running at size is not enough; the rollout must have completed too.
	assert.Equal(t, 3, fleets.describeCalls)
}

func TestApplyFleetSize_TimeoutReportsProgressAndDoesNotRollBack(t *testing.T) {
	fleets := &fakeFleetAPI{statuses: []provider.FleetStatus{
		{State: provider.StateActive, DesiredWorkers: 12, RunningWorkers: 7, RolloutComplete: true},
	}}
	scaler := newTestScaler(fleets)
	scaler.config.StabilizationTimeout = 5 * time.Millisecond

	err := scaler.ApplyFleetSize(context.Background(), 12)

	var stabilizationTimeout *surgeerrors.ErrStabilizationTimeout
	require.ErrorAs(t, err, &stabilizationTimeout)
	assert.Equal(t, 12, stabilizationTimeout.Desired)
	assert.Equal(t, 7, stabilizationTimeout.Running)
	// Exactly one scaling call: the fleet is left converging, never reset.
	assert.Equal(t, []int{12}, fleets.desiredSets)
}

func TestApplyFleetSize_StaleDesiredCountIsNotStable(t *testing.T) {
	// The provider still reports the old desired count on the first describe.
	fleets := &fakeFleetAPI{statuses: []provider.FleetStatus{
		{State: provider.StateActive, DesiredWorkers: 3, RunningWorkers: 3, RolloutComplete: true},
		{State: provider.StateActive, DesiredWorkers: 10, RunningWorkers: 10, RolloutComplete: true},
	}}
	scaler := newTestScaler(fleets)

	err := scaler.ApplyFleetSize(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 2, fleets.describeCalls)
}

func TestApplyFleetSize_ScaleToZero(t *testing.T) {
	fleets := &fakeFleetAPI{statuses: []provider.FleetStatus{
		{State: provider.StateActive, DesiredWorkers: 0, RunningWorkers: 2, RolloutComplete: true},
		{State: provider.StateActive, DesiredWorkers: 0, RunningWorkers: 0, RolloutComplete: true},
	}}
	scaler := newTestScaler(fleets)

	err := scaler.ApplyFleetSize(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, []int{0}, fleets.desiredSets)
}

func TestApplyFleetSize_RejectsNegativeCount(t *testing.T) {
	fleets := &fakeFleetAPI{}
	scaler := newTestScaler(fleets)

	err := scaler.ApplyFleetSize(context.Background(), -1)

	var invalidArgument *surgeerrors.ErrInvalidArgument
	require.ErrorAs(t, err, &invalidArgument)
	assert.Empty(t, fleets.desiredSets)
}

func TestApplyFleetSize_MissingFleetIsResourceFailure(t *testing.T) {
	fleets := &fakeFleetAPI{statuses: []provider.FleetStatus{
		{State: provider.StateMissing},
	}}
	scaler := newTestScaler(fleets)

	err := scaler.ApplyFleetSize(context.Background(), 5)

	var resourceFailed *surgeerrors.ErrResourceFailed
	require.ErrorAs(t, err, &resourceFailed)
	assert.Equal(t, "fleet", resourceFailed.Type)
}

func TestPropagatePhaseConfig(t *testing.T) {
	fleets := &fakeFleetAPI{}
	scaler := newTestScaler(fleets)
	command := domain.RateCommand{PhaseNumber: 2, TargetRate: 100000, WorkerCount: 29, PerWorkerRate: 3448}

	err := scaler.PropagatePhaseConfig(context.Background(), "01gx3z9f7q", command)

	require.NoError(t, err)
	require.Len(t, fleets.propagated, 1)
	assert.Equal(t, provider.RuntimeConfig{
		ExecutionId:   "01gx3z9f7q",
		PhaseNumber:   2,
		TargetRate:    100000,
		PerWorkerRate: 3448,
	}, fleets.propagated[0])
}

func newTestScaler(fleets *fakeFleetAPI) *Scaler {
	return NewScaler(fleets, poller.New(), configuration.FleetConfiguration{
		Cluster:              "surge-demo",
		Service:              "workers",
		PerWorkerCapacity:    1000,
		MinWorkers:           1,
		MaxWorkers:           50,
		StabilizationTimeout: time.Second,
		PollInterval:         time.Millisecond,
	})
}

type fakeFleetAPI struct {
	statuses      []provider.FleetStatus
	describeCalls int
	desiredSets   []int
	propagated    []provider.RuntimeConfig
}

func (f *fakeFleetAPI) DescribeFleet(_ context.Context, _ provider.FleetRef) (provider.FleetStatus, error) {
	i := f.describeCalls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.describeCalls++
	return f.statuses[i], nil
}

func (f *fakeFleetAPI) PropagateRuntimeConfig(_ context.Context, _ provider.FleetRef, cfg provider.RuntimeConfig) error {
	f.propagated = append(f.propagated, cfg)
	return nil
}

func (f *fakeFleetAPI) SetDesiredWorkers(_ context.Context, _ provider.FleetRef, count int) error {
	f.desiredSets = append(f.desiredSets, count)
	return nil
}
