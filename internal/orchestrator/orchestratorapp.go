package orchestrator

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/surgeproject/surge/internal/common"
	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/common/health"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/fleet"
	"github.com/surgeproject/surge/internal/orchestrator/phase"
	"github.com/surgeproject/surge/internal/orchestrator/poller"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
	"github.com/surgeproject/surge/internal/orchestrator/provider/aws"
	"github.com/surgeproject/surge/internal/orchestrator/provider/fake"
	"github.com/surgeproject/surge/internal/orchestrator/reporter"
	"github.com/surgeproject/surge/internal/orchestrator/stream"
)

// System is the wired orchestration stack for one process.
type System struct {
	Provider     provider.Provider
	Streams      *stream.Manager
	Scaler       *fleet.Scaler
	Orchestrator *Orchestrator
	Executions   *ExecutionManager
}

// Bootstrap builds the orchestration components on top of the configured
// provider. It makes no provider calls itself.
func Bootstrap(ctx context.Context, config configuration.Configuration) (*System, error) {
	backend, err := createProvider(ctx, config)
	if err != nil {
		return nil, err
	}

	statusPoller := poller.New()
	streams := stream.NewManager(backend.Stream(), backend.Account(), statusPoller, config.Stream)
	scaler := fleet.NewScaler(backend.Fleet(), statusPoller, config.Fleet)
	phases := phase.NewController(scaler, config.Fleet)
	events := reporter.New(backend.Metrics(), config.Fleet.Ref())
	orch := New(streams, scaler, phases, events, config)

	return &System{
		Provider:     backend,
		Streams:      streams,
		Scaler:       scaler,
		Orchestrator: orch,
		Executions:   NewExecutionManager(orch),
	}, nil
}

// Run executes one demo end to end and returns once it has settled. SIGTERM
// and SIGINT request a stop; the demo still cleans up before Run returns.
func Run(config configuration.Configuration) error {
	g, ctx := errgroup.WithContext(app.CreateContextWithShutdown())

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()
	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.HttpPort, mux)
	defer shutdownHttpServer()

	//////////////////////////////////////////////////////////////////////////
	// Metrics
	//////////////////////////////////////////////////////////////////////////
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	//////////////////////////////////////////////////////////////////////////
	// Orchestration
	//////////////////////////////////////////////////////////////////////////
	system, err := Bootstrap(ctx, config)
	if err != nil {
		return errors.WithMessage(err, "error setting up orchestration")
	}

	executionId, err := system.Executions.Start(ctx, config.Fleet.Ref(), config.Stream.Name)
	if err != nil {
		return errors.WithMessage(err, "error starting execution")
	}

	startupCompleteCheck.MarkComplete()

	g.Go(func() error {
		// Wait on a background context: a stop request cancels the run
		// context, but the process must stay up until cleanup has settled.
		result, err := system.Executions.Wait(context.Background(), executionId)
		if err != nil {
			return err
		}
		switch result.Status {
		case StatusCompleted:
			return nil
		case StatusStopped:
			return errors.New("demo stopped before completion")
		default:
			if result.FailedPhase != nil {
				return errors.WithMessagef(result.Err, "demo failed during phase %d", *result.FailedPhase)
			}
			return errors.WithMessage(result.Err, "demo failed")
		}
	})
	return g.Wait()
}

func createProvider(ctx context.Context, config configuration.Configuration) (provider.Provider, error) {
	switch providerType := strings.ToLower(config.Provider.Type); providerType {
	case "aws":
		return aws.NewProvider(ctx, config.Provider)
	case "fake":
		log.Info("using the in-memory fake provider; no cloud resources will be touched")
		return fake.NewProvider(fake.Config{
			ConvergeAfterPolls:  2,
			WarmCapacityEnabled: true,
			Fleets:              []provider.FleetRef{config.Fleet.Ref()},
		}), nil
	default:
		return nil, errors.Errorf("%s is not a valid provider type", config.Provider.Type)
	}
}
