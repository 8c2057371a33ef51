package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/pkg/errors"

	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// kinesisAPI is the slice of the Kinesis client the adapter needs.
type kinesisAPI interface {
	CreateStream(ctx context.Context, params *kinesis.CreateStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.CreateStreamOutput, error)
	DescribeStreamSummary(ctx context.Context, params *kinesis.DescribeStreamSummaryInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamSummaryOutput, error)
	DeleteStream(ctx context.Context, params *kinesis.DeleteStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.DeleteStreamOutput, error)
	UpdateStreamMode(ctx context.Context, params *kinesis.UpdateStreamModeInput, optFns ...func(*kinesis.Options)) (*kinesis.UpdateStreamModeOutput, error)
	UpdateShardCount(ctx context.Context, params *kinesis.UpdateShardCountInput, optFns ...func(*kinesis.Options)) (*kinesis.UpdateShardCountOutput, error)
}

type StreamService struct {
	client kinesisAPI
}

var _ provider.StreamAPI = &StreamService{}

func NewStreamService(client kinesisAPI) *StreamService {
	return &StreamService{client: client}
}

// CreateStream provisions an on-demand stream. Streams always start in
// standard mode; warm capacity is a later mode switch.
func (s *StreamService) CreateStream(ctx context.Context, name string) error {
	_, err := s.client.CreateStream(ctx, &kinesis.CreateStreamInput{
		StreamName: aws.String(name),
		StreamModeDetails: &types.StreamModeDetails{
			StreamMode: types.StreamModeOnDemand,
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			// Already being created; the caller polls it to active.
			return nil
		}
		return errors.Wrapf(err, "creating stream %q", name)
	}
	return nil
}

func (s *StreamService) DescribeStream(ctx context.Context, name string) (provider.StreamStatus, error) {
	out, err := s.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return provider.StreamStatus{State: provider.StateMissing}, nil
		}
		return provider.StreamStatus{}, errors.Wrapf(err, "describing stream %q", name)
	}
	summary := out.StreamDescriptionSummary
	return provider.StreamStatus{
		State:         streamState(summary.StreamStatus),
		Mode:          capacityModeOf(summary.StreamModeDetails),
		CapacityUnits: int(aws.ToInt32(summary.OpenShardCount)),
	}, nil
}

func (s *StreamService) DeleteStream(ctx context.Context, name string) error {
	_, err := s.client.DeleteStream(ctx, &kinesis.DeleteStreamInput{
		StreamName:              aws.String(name),
		EnforceConsumerDeletion: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrapf(err, "deleting stream %q", name)
	}
	return nil
}

// SetStreamMode switches between on-demand and provisioned capacity.
// UpdateStreamMode addresses streams by ARN, so the stream is described first.
func (s *StreamService) SetStreamMode(ctx context.Context, name string, mode domain.CapacityMode) error {
	out, err := s.client.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamName: aws.String(name),
	})
	if err != nil {
		return errors.Wrapf(err, "resolving arn of stream %q", name)
	}
	_, err = s.client.UpdateStreamMode(ctx, &kinesis.UpdateStreamModeInput{
		StreamARN: out.StreamDescriptionSummary.StreamARN,
		StreamModeDetails: &types.StreamModeDetails{
			StreamMode: streamModeOf(mode),
		},
	})
	if err != nil {
		return errors.Wrapf(err, "switching stream %q to %s mode", name, mode)
	}
	return nil
}

func (s *StreamService) SetCapacityUnits(ctx context.Context, name string, units int) error {
	_, err := s.client.UpdateShardCount(ctx, &kinesis.UpdateShardCountInput{
		StreamName:       aws.String(name),
		TargetShardCount: aws.Int32(int32(units)),
		ScalingType:      types.ScalingTypeUniformScaling,
	})
	if err != nil {
		return errors.Wrapf(err, "setting shard count of stream %q to %d", name, units)
	}
	return nil
}

func streamState(status types.StreamStatus) provider.State {
	switch status {
	case types.StreamStatusCreating:
		return provider.StatePending
	case types.StreamStatusActive:
		return provider.StateActive
	case types.StreamStatusUpdating:
		return provider.StateUpdating
	case types.StreamStatusDeleting:
		return provider.StateDeleting
	default:
		return provider.StateFailed
	}
}

func capacityModeOf(details *types.StreamModeDetails) domain.CapacityMode {
	if details == nil || details.StreamMode == types.StreamModeOnDemand {
		return domain.CapacityModeStandard
	}
	return domain.CapacityModeProvisionedWarm
}

func streamModeOf(mode domain.CapacityMode) types.StreamMode {
	if mode == domain.CapacityModeProvisionedWarm {
		return types.StreamModeProvisioned
	}
	return types.StreamModeOnDemand
}
