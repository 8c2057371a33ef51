// Package aws adapts the provider interfaces to Amazon Kinesis, ECS,
// CloudWatch and Service Quotas. The demo stream maps to a Kinesis data
// stream with capacity units as shards, and the worker fleet to an ECS
// service whose task definition carries the per-phase runtime configuration.
package aws

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"github.com/pkg/errors"

	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

type Provider struct {
	streams *StreamService
	fleets  *FleetService
	account *AccountService
	metrics *MetricsService
}

var _ provider.Provider = &Provider{}

// NewProvider resolves credentials and region from the standard AWS
// environment and builds the four service adapters.
func NewProvider(ctx context.Context, config configuration.ProviderConfiguration) (*Provider, error) {
	var options []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		options = append(options, awsconfig.WithRegion(config.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws configuration")
	}

	return &Provider{
		streams: NewStreamService(kinesis.NewFromConfig(cfg)),
		fleets:  NewFleetService(ecs.NewFromConfig(cfg)),
		account: NewAccountService(servicequotas.NewFromConfig(cfg)),
		metrics: NewMetricsService(cloudwatch.NewFromConfig(cfg), config.MetricsNamespace),
	}, nil
}

func (p *Provider) Stream() provider.StreamAPI   { return p.streams }
func (p *Provider) Fleet() provider.FleetAPI     { return p.fleets }
func (p *Provider) Account() provider.AccountAPI { return p.account }
func (p *Provider) Metrics() provider.MetricsAPI { return p.metrics }
