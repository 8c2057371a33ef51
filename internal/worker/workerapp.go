package worker

import (
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/surgeproject/surge/internal/common"
	"github.com/surgeproject/surge/internal/common/app"
	"github.com/surgeproject/surge/internal/common/health"
	"github.com/surgeproject/surge/internal/common/task"
	"github.com/surgeproject/surge/internal/worker/configuration"
	"github.com/surgeproject/surge/internal/worker/generator"
	"github.com/surgeproject/surge/internal/worker/metrics"
	"github.com/surgeproject/surge/internal/worker/phasecfg"
	"github.com/surgeproject/surge/internal/worker/producer"
)

// Run wires the worker and produces until the process is asked to stop. On
// SIGTERM the pacing loop winds down first and the producer drains whatever
// is still batched, so scale-in does not lose records.
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
	// Publishing pipeline
	//////////////////////////////////////////////////////////////////////////
	var options []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		options = append(options, awsconfig.WithRegion(config.Region))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return errors.Wrap(err, "loading aws configuration")
	}

	seed := config.Generator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := generator.New(seed)
	prod := producer.New(kinesis.NewFromConfig(awsConfig), config.Stream.Name, config.Producer)
	source := phasecfg.NewSource()
	pacer := New(gen, prod, source)

	services := []func() error{
		func() error { return prod.Run(ctx) },
		func() error { return pacer.Run(ctx) },
	}
	for _, service := range services {
		g.Go(service)
	}

	//////////////////////////////////////////////////////////////////////////
	// Periodic window report
	//////////////////////////////////////////////////////////////////////////
	taskManager := task.NewBackgroundTaskManager(metrics.MetricsPrefix)
	defer taskManager.StopAll(2 * time.Second)
	taskManager.Register(func() { reportWindow(prod, source) }, config.MetricsReportInterval, "window_report")

	startupCompleteCheck.MarkComplete()
	log.Infof("worker up, publishing to stream %s", config.Stream.Name)
	return g.Wait()
}

// reportWindow logs a digest of the window just ended and starts a new one.
func reportWindow(prod *producer.Producer, source *phasecfg.Source) {
	window := prod.ResetWindow()
	assignment := source.Read()
	log.Infof("phase %d window: %d posts sent, %d failed (%.1f%% success) in %d batches",
		assignment.PhaseNumber, window.Sent, window.Failed, window.SuccessRate(), window.Batches)
	if window.Sent > 0 {
		log.Infof("  average latency %s, average record %.0fB",
			window.AverageLatency(), window.AverageRecordSize())
	}
	if window.Throttles > 0 || window.Retries > 0 {
		log.Infof("  %d records throttled, %d retries", window.Throttles, window.Retries)
	}
}
