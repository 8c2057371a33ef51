package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// cloudwatchAPI is the slice of the CloudWatch client the adapter needs.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type MetricsService struct {
	client    cloudwatchAPI
	namespace string
}

var _ provider.MetricsAPI = &MetricsService{}

func NewMetricsService(client cloudwatchAPI, namespace string) *MetricsService {
	return &MetricsService{client: client, namespace: namespace}
}

func (m *MetricsService) PutMetric(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: toDimensions(dimensions),
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []types.MetricDatum{datum},
	})
	if err != nil {
		return errors.Wrapf(err, "publishing metric %s", name)
	}
	return nil
}

func toDimensions(dimensions map[string]string) []types.Dimension {
	names := maps.Keys(dimensions)
	slices.Sort(names)
	out := make([]types.Dimension, 0, len(names))
	for _, name := range names {
		out = append(out, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(dimensions[name]),
		})
	}
	return out
}
