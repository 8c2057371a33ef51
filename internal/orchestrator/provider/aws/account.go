package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

const (
	kinesisServiceCode = "kinesis"
	// Shards per region. Warm streams sized for the demo's peak need
	// headroom well beyond the default account limit.
	shardsPerRegionQuotaCode = "L-2251B9B6"
	warmCapacityShardFloor   = 1000
)

// quotasAPI is the slice of the Service Quotas client the adapter needs.
type quotasAPI interface {
	GetServiceQuota(ctx context.Context, params *servicequotas.GetServiceQuotaInput, optFns ...func(*servicequotas.Options)) (*servicequotas.GetServiceQuotaOutput, error)
	RequestServiceQuotaIncrease(ctx context.Context, params *servicequotas.RequestServiceQuotaIncreaseInput, optFns ...func(*servicequotas.Options)) (*servicequotas.RequestServiceQuotaIncreaseOutput, error)
}

// AccountService treats the account's Kinesis shard quota as the warm
// capacity capability: the account is enabled once the quota covers the floor
// a warm stream can be asked to hold.
type AccountService struct {
	client quotasAPI
}

var _ provider.AccountAPI = &AccountService{}

func NewAccountService(client quotasAPI) *AccountService {
	return &AccountService{client: client}
}

func (a *AccountService) WarmCapacityEnabled(ctx context.Context) (bool, error) {
	out, err := a.client.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
		ServiceCode: aws.String(kinesisServiceCode),
		QuotaCode:   aws.String(shardsPerRegionQuotaCode),
	})
	if err != nil {
		var noQuota *types.NoSuchResourceException
		if errors.As(err, &noQuota) {
			// No applied quota means the account runs on the default limit.
			return false, nil
		}
		return false, errors.Wrap(err, "reading kinesis shard quota")
	}
	if out.Quota == nil || out.Quota.Value == nil {
		return false, nil
	}
	return *out.Quota.Value >= warmCapacityShardFloor, nil
}

func (a *AccountService) EnableWarmCapacity(ctx context.Context) error {
	enabled, err := a.WarmCapacityEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		log.Info("account already enabled for warm capacity")
		return nil
	}
	_, err = a.client.RequestServiceQuotaIncrease(ctx, &servicequotas.RequestServiceQuotaIncreaseInput{
		ServiceCode:  aws.String(kinesisServiceCode),
		QuotaCode:    aws.String(shardsPerRegionQuotaCode),
		DesiredValue: aws.Float64(warmCapacityShardFloor),
	})
	if err != nil {
		return errors.Wrap(err, "requesting kinesis shard quota increase")
	}
	log.Infof("requested a kinesis shard quota of %d; increases can take time to be granted", warmCapacityShardFloor)
	return nil
}
