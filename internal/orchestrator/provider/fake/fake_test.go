package fake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

var fleetRef = provider.FleetRef{Cluster: "surge-demo", Service: "workers"}

func TestStreamLifecycleConvergesAfterConfiguredPolls(t *testing.T) {
	p := NewProvider(Config{ConvergeAfterPolls: 2})
	ctx := context.Background()

	require.NoError(t, p.Streams.CreateStream(ctx, "posts"))

	for i := 0; i < 2; i++ {
		status, err := p.Streams.DescribeStream(ctx, "posts")
		require.NoError(t, err)
		assert.Equal(t, provider.StatePending, status.State, "describe %d", i+1)
	}
	status, err := p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateActive, status.State)

	require.NoError(t, p.Streams.DeleteStream(ctx, "posts"))
	for i := 0; i < 2; i++ {
		status, err = p.Streams.DescribeStream(ctx, "posts")
		require.NoError(t, err)
		assert.Equal(t, provider.StateDeleting, status.State)
	}
	status, err = p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateMissing, status.State)

	counters := p.Streams.Counters()
	assert.Equal(t, 1, counters.Creates)
	assert.Equal(t, 1, counters.Deletes)
	assert.Equal(t, 6, counters.Describes)
}

func TestStreamConvergesImmediatelyWithZeroPolls(t *testing.T) {
	p := NewProvider(Config{})
	ctx := context.Background()

	require.NoError(t, p.Streams.CreateStream(ctx, "posts"))
	status, err := p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateActive, status.State)
}

func TestStreamModeChangeDefaultsWarmUnits(t *testing.T) {
	p := NewProvider(Config{ConvergeAfterPolls: 1})
	ctx := context.Background()
	require.NoError(t, p.Streams.CreateStream(ctx, "posts"))
	_, err := p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	_, err = p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)

	require.NoError(t, p.Streams.SetStreamMode(ctx, "posts", domain.CapacityModeProvisionedWarm))

	status, err := p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateUpdating, status.State)
	assert.Equal(t, domain.CapacityModeProvisionedWarm, status.Mode)
	assert.Equal(t, domain.MinWarmCapacityUnits, status.CapacityUnits)

	status, err = p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateActive, status.State)
}

func TestCapacityChangeVisibleWhileUpdating(t *testing.T) {
	p := NewProvider(Config{ConvergeAfterPolls: 1})
	ctx := context.Background()
	require.NoError(t, p.Streams.CreateStream(ctx, "posts"))

	require.NoError(t, p.Streams.SetCapacityUnits(ctx, "posts", 24))

	status, err := p.Streams.DescribeStream(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, provider.StateUpdating, status.State)
	assert.Equal(t, 24, status.CapacityUnits)
}

func TestFailedStreamStaysFailed(t *testing.T) {
	p := NewProvider(Config{})
	ctx := context.Background()
	require.NoError(t, p.Streams.CreateStream(ctx, "posts"))

	p.Streams.FailStream("posts", "limit exceeded")

	for i := 0; i < 3; i++ {
		status, err := p.Streams.DescribeStream(ctx, "posts")
		require.NoError(t, err)
		assert.Equal(t, provider.StateFailed, status.State)
		assert.Equal(t, "limit exceeded", status.Reason)
	}
}

func TestFleetScaleConverges(t *testing.T) {
	p := NewProvider(Config{ConvergeAfterPolls: 2, Fleets: []provider.FleetRef{fleetRef}})
	ctx := context.Background()

	require.NoError(t, p.Fleets.SetDesiredWorkers(ctx, fleetRef, 5))

	status, err := p.Fleets.DescribeFleet(ctx, fleetRef)
	require.NoError(t, err)
	assert.Equal(t, 5, status.DesiredWorkers)
	assert.Equal(t, 0, status.RunningWorkers)
	assert.Equal(t, 5, status.PendingWorkers)
	assert.False(t, status.Stable())

	_, err = p.Fleets.DescribeFleet(ctx, fleetRef)
	require.NoError(t, err)
	status, err = p.Fleets.DescribeFleet(ctx, fleetRef)
	require.NoError(t, err)
	assert.Equal(t, 5, status.RunningWorkers)
	assert.True(t, status.Stable())
}

func TestConfigPropagationCyclesTheFleet(t *testing.T) {
	p := NewProvider(Config{ConvergeAfterPolls: 1, Fleets: []provider.FleetRef{fleetRef}})
	ctx := context.Background()
	cfg := provider.RuntimeConfig{ExecutionId: "01gv", PhaseNumber: 2, TargetRate: 100000, PerWorkerRate: 3448}

	require.NoError(t, p.Fleets.PropagateRuntimeConfig(ctx, fleetRef, cfg))

	status, err := p.Fleets.DescribeFleet(ctx, fleetRef)
	require.NoError(t, err)
	assert.False(t, status.Stable(), "a config rollout leaves the fleet unstable until it lands")
	require.NotNil(t, status.ActiveConfig)
	assert.Equal(t, cfg, *status.ActiveConfig)

	status, err = p.Fleets.DescribeFleet(ctx, fleetRef)
	require.NoError(t, err)
	assert.True(t, status.Stable())
}

func TestUnknownFleet(t *testing.T) {
	p := NewProvider(Config{})
	ctx := context.Background()
	unknown := provider.FleetRef{Cluster: "nowhere", Service: "nothing"}

	status, err := p.Fleets.DescribeFleet(ctx, unknown)
	require.NoError(t, err)
	assert.Equal(t, provider.StateMissing, status.State)

	var notFound *surgeerrors.ErrNotFound
	assert.ErrorAs(t, p.Fleets.SetDesiredWorkers(ctx, unknown, 1), &notFound)
	assert.ErrorAs(t, p.Fleets.PropagateRuntimeConfig(ctx, unknown, provider.RuntimeConfig{}), &notFound)
}

func TestAccountCapabilityToggle(t *testing.T) {
	p := NewProvider(Config{})
	ctx := context.Background()

	enabled, err := p.Capabilities.WarmCapacityEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, p.Capabilities.EnableWarmCapacity(ctx))

	enabled, err = p.Capabilities.WarmCapacityEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, AccountCounters{Checks: 2, Enables: 1}, p.Capabilities.Counters())
}

func TestMetricsCaptureAndFailureInjection(t *testing.T) {
	p := NewProvider(Config{})
	ctx := context.Background()
	dimensions := map[string]string{"DemoId": "01gv"}

	require.NoError(t, p.Telemetry.PutMetric(ctx, "PhaseTransition", 2, dimensions))
	dimensions["DemoId"] = "mutated-after-publish"

	published := p.Telemetry.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "PhaseTransition", published[0].Name)
	assert.Equal(t, float64(2), published[0].Value)
	assert.Equal(t, "01gv", published[0].Dimensions["DemoId"])

	p.Telemetry.FailWith(errors.New("throttled"))
	assert.Error(t, p.Telemetry.PutMetric(ctx, "TargetTPS", 1000, nil))
	assert.Len(t, p.Telemetry.Published(), 1)
}
