package aws

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// Environment variables carrying the runtime configuration into worker tasks.
const (
	envExecutionId = "DEMO_ID"
	envPhaseNumber = "DEMO_PHASE"
	envTargetRate  = "TARGET_TPS"
)

// ecsAPI is the slice of the ECS client the adapter needs.
type ecsAPI interface {
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	RegisterTaskDefinition(ctx context.Context, params *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
}

type FleetService struct {
	client ecsAPI

	// Task definition revisions are immutable, so the runtime configuration
	// parsed out of one can be cached for the lifetime of the process.
	mu          sync.Mutex
	configByArn map[string]*provider.RuntimeConfig
}

var _ provider.FleetAPI = &FleetService{}

func NewFleetService(client ecsAPI) *FleetService {
	return &FleetService{
		client:      client,
		configByArn: map[string]*provider.RuntimeConfig{},
	}
}

func (f *FleetService) DescribeFleet(ctx context.Context, ref provider.FleetRef) (provider.FleetStatus, error) {
	out, err := f.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(ref.Cluster),
		Services: []string{ref.Service},
	})
	if err != nil {
		var clusterMissing *types.ClusterNotFoundException
		if errors.As(err, &clusterMissing) {
			return provider.FleetStatus{State: provider.StateMissing, Reason: "cluster not found"}, nil
		}
		return provider.FleetStatus{}, errors.Wrapf(err, "describing fleet %s", ref)
	}
	if len(out.Services) == 0 {
		status := provider.FleetStatus{State: provider.StateMissing}
		if len(out.Failures) > 0 {
			status.Reason = aws.ToString(out.Failures[0].Reason)
		}
		return status, nil
	}

	service := out.Services[0]
	status := provider.FleetStatus{
		State:           serviceState(aws.ToString(service.Status)),
		DesiredWorkers:  int(service.DesiredCount),
		RunningWorkers:  int(service.RunningCount),
		PendingWorkers:  int(service.PendingCount),
		RolloutComplete: rolloutComplete(service.Deployments),
	}
	config, err := f.activeConfig(ctx, service.TaskDefinition)
	if err != nil {
		// The description itself is still usable; only recovery of a lost
		// execution needs the active configuration.
		log.WithError(err).Warnf("could not recover active configuration of fleet %s", ref)
	} else {
		status.ActiveConfig = config
	}
	return status, nil
}

// PropagateRuntimeConfig registers a new task definition revision carrying
// config in its environment and points the service at it. The service rolls
// its tasks; callers poll DescribeFleet until the rollout completes.
func (f *FleetService) PropagateRuntimeConfig(ctx context.Context, ref provider.FleetRef, config provider.RuntimeConfig) error {
	service, err := f.describeService(ctx, ref)
	if err != nil {
		return err
	}
	out, err := f.client.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: service.TaskDefinition,
	})
	if err != nil {
		return errors.Wrapf(err, "describing task definition of fleet %s", ref)
	}

	definition := out.TaskDefinition
	containers := make([]types.ContainerDefinition, len(definition.ContainerDefinitions))
	for i, container := range definition.ContainerDefinitions {
		container.Environment = mergeEnvironment(container.Environment, config)
		containers[i] = container
	}
	registered, err := f.client.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  definition.Family,
		ContainerDefinitions:    containers,
		Cpu:                     definition.Cpu,
		Memory:                  definition.Memory,
		NetworkMode:             definition.NetworkMode,
		TaskRoleArn:             definition.TaskRoleArn,
		ExecutionRoleArn:        definition.ExecutionRoleArn,
		RequiresCompatibilities: definition.RequiresCompatibilities,
		Volumes:                 definition.Volumes,
		PlacementConstraints:    definition.PlacementConstraints,
		ProxyConfiguration:      definition.ProxyConfiguration,
		IpcMode:                 definition.IpcMode,
		PidMode:                 definition.PidMode,
		RuntimePlatform:         definition.RuntimePlatform,
		EphemeralStorage:        definition.EphemeralStorage,
	})
	if err != nil {
		return errors.Wrapf(err, "registering task definition for fleet %s", ref)
	}

	arn := registered.TaskDefinition.TaskDefinitionArn
	_, err = f.client.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:        aws.String(ref.Cluster),
		Service:        aws.String(ref.Service),
		TaskDefinition: arn,
	})
	if err != nil {
		return errors.Wrapf(err, "rolling fleet %s onto task definition %s", ref, aws.ToString(arn))
	}
	log.Infof("fleet %s rolling onto phase %d configuration (%s)", ref, config.PhaseNumber, aws.ToString(arn))
	return nil
}

func (f *FleetService) SetDesiredWorkers(ctx context.Context, ref provider.FleetRef, workers int) error {
	_, err := f.client.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(ref.Cluster),
		Service:      aws.String(ref.Service),
		DesiredCount: aws.Int32(int32(workers)),
	})
	if err != nil {
		return errors.Wrapf(err, "scaling fleet %s to %d workers", ref, workers)
	}
	return nil
}

func (f *FleetService) describeService(ctx context.Context, ref provider.FleetRef) (types.Service, error) {
	out, err := f.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(ref.Cluster),
		Services: []string{ref.Service},
	})
	if err != nil {
		return types.Service{}, errors.Wrapf(err, "describing fleet %s", ref)
	}
	if len(out.Services) == 0 {
		return types.Service{}, errors.Errorf("fleet %s does not exist", ref)
	}
	return out.Services[0], nil
}

// activeConfig parses the runtime configuration out of the task definition the
// service currently runs, consulting the per-revision cache first.
func (f *FleetService) activeConfig(ctx context.Context, taskDefinitionArn *string) (*provider.RuntimeConfig, error) {
	if taskDefinitionArn == nil {
		return nil, nil
	}
	arn := aws.ToString(taskDefinitionArn)

	f.mu.Lock()
	cached, ok := f.configByArn[arn]
	f.mu.Unlock()
	if ok {
		return copyConfig(cached), nil
	}

	out, err := f.client.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{
		TaskDefinition: taskDefinitionArn,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "describing task definition %s", arn)
	}
	config := parseRuntimeConfig(out.TaskDefinition)

	f.mu.Lock()
	f.configByArn[arn] = config
	f.mu.Unlock()
	return copyConfig(config), nil
}

func copyConfig(config *provider.RuntimeConfig) *provider.RuntimeConfig {
	if config == nil {
		return nil
	}
	copied := *config
	return &copied
}

// parseRuntimeConfig recovers the runtime configuration from a task
// definition's environment. A revision without a phase number predates any
// demo and yields nil.
func parseRuntimeConfig(definition *types.TaskDefinition) *provider.RuntimeConfig {
	if definition == nil {
		return nil
	}
	values := map[string]string{}
	for _, container := range definition.ContainerDefinitions {
		for _, pair := range container.Environment {
			values[aws.ToString(pair.Name)] = aws.ToString(pair.Value)
		}
	}
	phase, err := strconv.Atoi(values[envPhaseNumber])
	if err != nil {
		return nil
	}
	rate, _ := strconv.Atoi(values[envTargetRate])
	return &provider.RuntimeConfig{
		ExecutionId:   values[envExecutionId],
		PhaseNumber:   phase,
		PerWorkerRate: rate,
	}
}

func mergeEnvironment(environment []types.KeyValuePair, config provider.RuntimeConfig) []types.KeyValuePair {
	overrides := map[string]string{
		envExecutionId: config.ExecutionId,
		envPhaseNumber: strconv.Itoa(config.PhaseNumber),
		envTargetRate:  strconv.Itoa(config.PerWorkerRate),
	}
	merged := make([]types.KeyValuePair, 0, len(environment)+len(overrides))
	for _, pair := range environment {
		if _, overridden := overrides[aws.ToString(pair.Name)]; !overridden {
			merged = append(merged, pair)
		}
	}
	names := maps.Keys(overrides)
	slices.Sort(names)
	for _, name := range names {
		merged = append(merged, types.KeyValuePair{
			Name:  aws.String(name),
			Value: aws.String(overrides[name]),
		})
	}
	return merged
}

func serviceState(status string) provider.State {
	switch status {
	case "ACTIVE":
		return provider.StateActive
	case "DRAINING":
		return provider.StateDeleting
	case "INACTIVE":
		return provider.StateMissing
	default:
		return provider.StateFailed
	}
}

// rolloutComplete reports whether exactly one steady deployment serves the
// fleet. Services without deployment circuit breakers report an empty rollout
// state, so a lone primary deployment also counts.
func rolloutComplete(deployments []types.Deployment) bool {
	if len(deployments) != 1 {
		return false
	}
	deployment := deployments[0]
	if deployment.RolloutState == "" {
		return aws.ToString(deployment.Status) == "PRIMARY"
	}
	return deployment.RolloutState == types.DeploymentRolloutStateCompleted
}
