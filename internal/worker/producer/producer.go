// Package producer batches posts and publishes them to the stream. It mirrors
// the provider's bulk write contract: up to 500 records or 4MiB per request,
// whichever fills first, with a flush timer so a quiet stream still sees
// partially filled batches promptly.
package producer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/worker/configuration"
	"github.com/surgeproject/surge/internal/worker/generator"
	"github.com/surgeproject/surge/internal/worker/generator/codec"
	"github.com/surgeproject/surge/internal/worker/metrics"
)

const (
	maxBatchRecords = 500
	maxBatchBytes   = 4 * 1024 * 1024

	throttleErrorCode = "ProvisionedThroughputExceededException"

	// drainTimeout bounds the final flush on shutdown.
	drainTimeout = 5 * time.Second
)

// KinesisAPI is the slice of the Kinesis client the producer needs.
type KinesisAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

type Producer struct {
	client KinesisAPI
	stream string
	config configuration.ProducerConfiguration
	clock  clock.Clock

	mu         sync.Mutex
	batch      []types.PutRecordsRequestEntry
	batchBytes int

	// Consecutive whole-batch failures; at BreakerThreshold the breaker opens
	// and batches are dropped until BreakerCooldown has passed.
	breakerFailures    int
	breakerLastFailure time.Time

	window Metrics
}

func New(client KinesisAPI, stream string, config configuration.ProducerConfiguration) *Producer {
	return &Producer{
		client: client,
		stream: stream,
		config: config,
		clock:  clock.RealClock{},
	}
}

// Send serializes the post and adds it to the pending batch. When the batch
// reaches a limit it is delivered inline; delivery errors surface here so the
// caller can observe backpressure.
func (p *Producer) Send(ctx context.Context, post generator.Post) error {
	data, err := codec.Marshal(post)
	if err != nil {
		p.countFailed(1)
		return err
	}
	key := partitionKey(post.UserId)
	entrySize := len(data) + len(key)

	p.mu.Lock()
	var toSend []types.PutRecordsRequestEntry
	var toSendBytes int
	// The byte limit is checked before adding so a batch never grows past it.
	if len(p.batch) > 0 && p.batchBytes+entrySize > maxBatchBytes {
		toSend, toSendBytes = p.batch, p.batchBytes
		p.batch, p.batchBytes = nil, 0
	}
	p.batch = append(p.batch, types.PutRecordsRequestEntry{
		Data:         data,
		PartitionKey: aws.String(key),
	})
	p.batchBytes += entrySize
	if toSend == nil && len(p.batch) >= maxBatchRecords {
		toSend, toSendBytes = p.batch, p.batchBytes
		p.batch, p.batchBytes = nil, 0
	}
	p.mu.Unlock()

	if toSend == nil {
		return nil
	}
	return p.sendBatch(ctx, toSend, toSendBytes)
}

// Flush delivers whatever is pending, regardless of batch fill.
func (p *Producer) Flush(ctx context.Context) error {
	p.mu.Lock()
	toSend, toSendBytes := p.batch, p.batchBytes
	p.batch, p.batchBytes = nil, 0
	p.mu.Unlock()

	if len(toSend) == 0 {
		return nil
	}
	return p.sendBatch(ctx, toSend, toSendBytes)
}

// Run drives the flush timer. On shutdown the pending batch is drained with a
// fresh short-lived context so records generated before the stop are not lost.
func (p *Producer) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.config.MaxBatchWait)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := p.Flush(drainCtx); err != nil {
				log.WithError(err).Error("could not drain pending records during shutdown")
			}
			return nil
		case <-ticker.C():
			if err := p.Flush(ctx); err != nil {
				log.WithError(err).Warn("timed flush failed")
			}
		}
	}
}

// Metrics returns the current window without ending it.
func (p *Producer) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// ResetWindow returns the current window and starts a new one.
func (p *Producer) ResetWindow() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	window := p.window
	p.window = Metrics{}
	return window
}

func (p *Producer) sendBatch(ctx context.Context, entries []types.PutRecordsRequestEntry, size int) error {
	if p.breakerOpen() {
		p.countFailed(len(entries))
		log.Warnf("circuit breaker open, dropping batch of %d records", len(entries))
		return nil
	}

	start := p.clock.Now()
	sent, failed, err := p.putWithRetry(ctx, entries)
	latency := p.clock.Since(start)

	p.mu.Lock()
	p.window.Sent += sent
	p.window.Failed += failed
	if sent > 0 {
		p.window.Batches++
		p.window.Bytes += size
		p.window.TotalLatency += latency
		p.window.LastSend = p.clock.Now()
	}
	if err != nil {
		p.breakerFailures++
		p.breakerLastFailure = p.clock.Now()
		if p.breakerFailures == p.config.BreakerThreshold {
			metrics.RecordBreakerOpened()
			log.Warnf("circuit breaker opened after %d consecutive batch failures; cooling down for %s",
				p.breakerFailures, p.config.BreakerCooldown)
		}
	} else {
		p.breakerFailures = 0
	}
	p.mu.Unlock()

	metrics.RecordPostsSent(sent)
	metrics.RecordPostsFailed(failed)
	if sent > 0 {
		metrics.RecordBatchSent(latency.Seconds())
	}
	return err
}

// putWithRetry delivers entries, retrying throttled or transiently failed
// requests and requeueing throttled records out of partial failures. Records
// rejected for any other reason are dropped and counted, matching the
// at-least-once posture of the demo: one bad record must not stall the batch.
func (p *Producer) putWithRetry(ctx context.Context, entries []types.PutRecordsRequestEntry) (sent, failed int, err error) {
	remaining := entries
	for attempt := 1; ; attempt++ {
		out, sendErr := p.client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(p.stream),
			Records:    remaining,
		})
		if sendErr != nil {
			if isThrottle(sendErr) {
				p.countThrottles(1)
			}
			if !retryableSendError(sendErr) {
				return sent, failed + len(remaining), errors.Wrap(sendErr, "sending batch")
			}
			if attempt >= p.config.RetryAttempts {
				return sent, failed + len(remaining),
					errors.Wrapf(sendErr, "batch not delivered after %d attempts", attempt)
			}
			p.countRetry()
			if waitErr := p.backoff(ctx, attempt); waitErr != nil {
				return sent, failed + len(remaining), waitErr
			}
			continue
		}

		if aws.ToInt32(out.FailedRecordCount) == 0 {
			return sent + len(remaining), failed, nil
		}

		var requeue []types.PutRecordsRequestEntry
		dropped := 0
		for i, result := range out.Records {
			switch {
			case result.ErrorCode == nil:
				sent++
			case aws.ToString(result.ErrorCode) == throttleErrorCode:
				requeue = append(requeue, remaining[i])
			default:
				dropped++
			}
		}
		failed += dropped
		if dropped > 0 {
			log.Warnf("%d records rejected by the stream and dropped", dropped)
		}
		p.countThrottles(len(requeue))
		if len(requeue) == 0 {
			return sent, failed, nil
		}
		if attempt >= p.config.RetryAttempts {
			return sent, failed + len(requeue),
				errors.Errorf("%d records still throttled after %d attempts", len(requeue), attempt)
		}
		remaining = requeue
		p.countRetry()
		if waitErr := p.backoff(ctx, attempt); waitErr != nil {
			return sent, failed + len(remaining), waitErr
		}
	}
}

// backoff waits exponentially with jitter so throttled workers do not retry
// in lockstep.
func (p *Producer) backoff(ctx context.Context, attempt int) error {
	delay := p.config.RetryBaseDelay * (1 << (attempt - 1))
	if delay > p.config.RetryMaxDelay {
		delay = p.config.RetryMaxDelay
	}
	delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(delay):
		return nil
	}
}

func (p *Producer) breakerOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.breakerFailures < p.config.BreakerThreshold {
		return false
	}
	return p.clock.Since(p.breakerLastFailure) < p.config.BreakerCooldown
}

func (p *Producer) countFailed(count int) {
	p.mu.Lock()
	p.window.Failed += count
	p.mu.Unlock()
	metrics.RecordPostsFailed(count)
}

func (p *Producer) countThrottles(count int) {
	if count == 0 {
		return
	}
	p.mu.Lock()
	p.window.Throttles += count
	p.mu.Unlock()
	metrics.RecordThrottles(count)
}

func (p *Producer) countRetry() {
	p.mu.Lock()
	p.window.Retries++
	p.mu.Unlock()
	metrics.RecordSendRetry()
}

func isThrottle(err error) bool {
	var throttled *types.ProvisionedThroughputExceededException
	return errors.As(err, &throttled)
}

// retryableSendError reports whether a whole-request failure is worth another
// attempt: throttles, transient service errors and network failures are;
// validation-class rejections are not.
func retryableSendError(err error) bool {
	if isThrottle(err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InternalFailure", "ServiceUnavailable", "RequestTimeout":
			return true
		default:
			return false
		}
	}
	return true
}
