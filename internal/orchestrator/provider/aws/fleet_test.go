package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

var testRef = provider.FleetRef{Cluster: "surge-demo", Service: "workers"}

func TestDescribeFleet_MapsServiceAndRecoversConfig(t *testing.T) {
	client := &fakeEcs{
		services: map[string]types.Service{
			"workers": {
				Status:         aws.String("ACTIVE"),
				DesiredCount:   29,
				RunningCount:   29,
				PendingCount:   0,
				TaskDefinition: aws.String("arn:aws:ecs:task-definition/workers:7"),
				Deployments: []types.Deployment{
					{Status: aws.String("PRIMARY"), RolloutState: types.DeploymentRolloutStateCompleted},
				},
			},
		},
		definitions: map[string]*types.TaskDefinition{
			"arn:aws:ecs:task-definition/workers:7": {
				Family: aws.String("workers"),
				ContainerDefinitions: []types.ContainerDefinition{
					{
						Name: aws.String("worker"),
						Environment: []types.KeyValuePair{
							{Name: aws.String(envExecutionId), Value: aws.String("01gv3z9f7q")},
							{Name: aws.String(envPhaseNumber), Value: aws.String("2")},
							{Name: aws.String(envTargetRate), Value: aws.String("3448")},
						},
					},
				},
			},
		},
	}
	service := NewFleetService(client)

	status, err := service.DescribeFleet(context.Background(), testRef)
	require.NoError(t, err)

	assert.Equal(t, provider.StateActive, status.State)
	assert.Equal(t, 29, status.DesiredWorkers)
	assert.Equal(t, 29, status.RunningWorkers)
	assert.True(t, status.RolloutComplete)
	assert.True(t, status.Stable())
	require.NotNil(t, status.ActiveConfig)
	assert.Equal(t, provider.RuntimeConfig{
		ExecutionId:   "01gv3z9f7q",
		PhaseNumber:   2,
		PerWorkerRate: 3448,
	}, *status.ActiveConfig)
}

func TestDescribeFleet_CachesTaskDefinitionRevisions(t *testing.T) {
	client := &fakeEcs{
		services: map[string]types.Service{
			"workers": {
				Status:         aws.String("ACTIVE"),
				TaskDefinition: aws.String("arn:aws:ecs:task-definition/workers:7"),
				Deployments:    []types.Deployment{{Status: aws.String("PRIMARY")}},
			},
		},
		definitions: map[string]*types.TaskDefinition{
			"arn:aws:ecs:task-definition/workers:7": {Family: aws.String("workers")},
		},
	}
	service := NewFleetService(client)

	for i := 0; i < 3; i++ {
		_, err := service.DescribeFleet(context.Background(), testRef)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.definitionDescribes)
}

func TestDescribeFleet_AbsentServiceIsMissing(t *testing.T) {
	client := &fakeEcs{
		failures: []types.Failure{{Arn: aws.String("workers"), Reason: aws.String("MISSING")}},
	}
	service := NewFleetService(client)

	status, err := service.DescribeFleet(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, provider.StateMissing, status.State)
	assert.Equal(t, "MISSING", status.Reason)
}

func TestDescribeFleet_AbsentClusterIsMissing(t *testing.T) {
	client := &fakeEcs{describeErr: &types.ClusterNotFoundException{Message: aws.String("no such cluster")}}
	service := NewFleetService(client)

	status, err := service.DescribeFleet(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, provider.StateMissing, status.State)
}

func TestDescribeFleet_InFlightRolloutIsNotComplete(t *testing.T) {
	client := &fakeEcs{
		services: map[string]types.Service{
			"workers": {
				Status: aws.String("ACTIVE"),
				Deployments: []types.Deployment{
					{Status: aws.String("PRIMARY"), RolloutState: types.DeploymentRolloutStateInProgress},
					{Status: aws.String("ACTIVE"), RolloutState: types.DeploymentRolloutStateCompleted},
				},
			},
		},
	}
	service := NewFleetService(client)

	status, err := service.DescribeFleet(context.Background(), testRef)
	require.NoError(t, err)
	assert.False(t, status.RolloutComplete)
}

func TestPropagateRuntimeConfig_RollsANewRevision(t *testing.T) {
	client := &fakeEcs{
		services: map[string]types.Service{
			"workers": {
				Status:         aws.String("ACTIVE"),
				TaskDefinition: aws.String("arn:aws:ecs:task-definition/workers:7"),
			},
		},
		definitions: map[string]*types.TaskDefinition{
			"arn:aws:ecs:task-definition/workers:7": {
				Family: aws.String("workers"),
				Cpu:    aws.String("1024"),
				Memory: aws.String("2048"),
				ContainerDefinitions: []types.ContainerDefinition{
					{
						Name: aws.String("worker"),
						Environment: []types.KeyValuePair{
							{Name: aws.String("STREAM_NAME"), Value: aws.String("posts")},
							{Name: aws.String(envTargetRate), Value: aws.String("79")},
						},
					},
				},
			},
		},
		registeredArn: "arn:aws:ecs:task-definition/workers:8",
	}
	service := NewFleetService(client)

	err := service.PropagateRuntimeConfig(context.Background(), testRef, provider.RuntimeConfig{
		ExecutionId:   "01gv3z9f7q",
		PhaseNumber:   2,
		TargetRate:    100000,
		PerWorkerRate: 3448,
	})
	require.NoError(t, err)

	require.Len(t, client.registerInputs, 1)
	registered := client.registerInputs[0]
	assert.Equal(t, "workers", aws.ToString(registered.Family))
	assert.Equal(t, "1024", aws.ToString(registered.Cpu))
	require.Len(t, registered.ContainerDefinitions, 1)
	assert.Equal(t, []types.KeyValuePair{
		{Name: aws.String("STREAM_NAME"), Value: aws.String("posts")},
		{Name: aws.String(envExecutionId), Value: aws.String("01gv3z9f7q")},
		{Name: aws.String(envPhaseNumber), Value: aws.String("2")},
		{Name: aws.String(envTargetRate), Value: aws.String("3448")},
	}, registered.ContainerDefinitions[0].Environment)

	require.Len(t, client.updateInputs, 1)
	update := client.updateInputs[0]
	assert.Equal(t, "arn:aws:ecs:task-definition/workers:8", aws.ToString(update.TaskDefinition))
	assert.Nil(t, update.DesiredCount)
}

func TestSetDesiredWorkers_UpdatesOnlyTheCount(t *testing.T) {
	client := &fakeEcs{}
	service := NewFleetService(client)

	require.NoError(t, service.SetDesiredWorkers(context.Background(), testRef, 29))

	require.Len(t, client.updateInputs, 1)
	update := client.updateInputs[0]
	assert.Equal(t, "surge-demo", aws.ToString(update.Cluster))
	assert.Equal(t, "workers", aws.ToString(update.Service))
	assert.Equal(t, int32(29), aws.ToInt32(update.DesiredCount))
	assert.Nil(t, update.TaskDefinition)
}

func TestParseRuntimeConfig_RevisionWithoutPhaseYieldsNothing(t *testing.T) {
	definition := &types.TaskDefinition{
		ContainerDefinitions: []types.ContainerDefinition{
			{Environment: []types.KeyValuePair{{Name: aws.String("STREAM_NAME"), Value: aws.String("posts")}}},
		},
	}
	assert.Nil(t, parseRuntimeConfig(definition))
}

type fakeEcs struct {
	services    map[string]types.Service
	failures    []types.Failure
	definitions map[string]*types.TaskDefinition

	describeErr   error
	registeredArn string

	definitionDescribes int
	registerInputs      []*ecs.RegisterTaskDefinitionInput
	updateInputs        []*ecs.UpdateServiceInput
}

func (f *fakeEcs) DescribeServices(_ context.Context, params *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	out := &ecs.DescribeServicesOutput{Failures: f.failures}
	for _, name := range params.Services {
		if service, ok := f.services[name]; ok {
			out.Services = append(out.Services, service)
		}
	}
	return out, nil
}

func (f *fakeEcs) DescribeTaskDefinition(_ context.Context, params *ecs.DescribeTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	f.definitionDescribes++
	definition, ok := f.definitions[aws.ToString(params.TaskDefinition)]
	if !ok {
		return nil, &types.ClientException{Message: aws.String("unknown task definition")}
	}
	return &ecs.DescribeTaskDefinitionOutput{TaskDefinition: definition}, nil
}

func (f *fakeEcs) RegisterTaskDefinition(_ context.Context, params *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	f.registerInputs = append(f.registerInputs, params)
	return &ecs.RegisterTaskDefinitionOutput{
		TaskDefinition: &types.TaskDefinition{TaskDefinitionArn: aws.String(f.registeredArn)},
	}, nil
}

func (f *fakeEcs) UpdateService(_ context.Context, params *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	f.updateInputs = append(f.updateInputs, params)
	return &ecs.UpdateServiceOutput{}, nil
}
