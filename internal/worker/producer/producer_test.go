package producer

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/surgeproject/surge/internal/worker/configuration"
	"github.com/surgeproject/surge/internal/worker/generator"
)

func TestSend_FlushesAtTheRecordLimit(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	for i := 0; i < maxBatchRecords; i++ {
		require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	}

	require.Len(t, client.calls(), 1)
	assert.Len(t, client.calls()[0].Records, maxBatchRecords)
	assert.Equal(t, "posts", aws.ToString(client.calls()[0].StreamName))

	window := p.Metrics()
	assert.Equal(t, maxBatchRecords, window.Sent)
	assert.Equal(t, 1, window.Batches)
	assert.Zero(t, window.Failed)
}

func TestSend_FlushesAtTheByteLimit(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())

	big := generator.Post{
		Id:       "big",
		UserId:   "user_1",
		Content:  strings.Repeat("x", 1500000),
		PostType: generator.PostTypeOriginal,
	}
	ctx := context.Background()
	require.NoError(t, p.Send(ctx, big))
	require.NoError(t, p.Send(ctx, big))
	require.Empty(t, client.calls())

	// The third post would push the batch past the byte limit, so the first
	// two are delivered ahead of it.
	require.NoError(t, p.Send(ctx, big))
	require.Len(t, client.calls(), 1)
	assert.Len(t, client.calls()[0].Records, 2)

	require.NoError(t, p.Flush(ctx))
	require.Len(t, client.calls(), 2)
	assert.Len(t, client.calls()[1].Records, 1)
}

func TestFlush_DeliversAPartialBatch(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	}
	require.Empty(t, client.calls())

	require.NoError(t, p.Flush(ctx))
	require.Len(t, client.calls(), 1)
	assert.Len(t, client.calls()[0].Records, 3)

	// A second flush with nothing pending is a no-op.
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, client.calls(), 1)
}

func TestPartitionKey(t *testing.T) {
	key := partitionKey("user_123456")
	assert.Equal(t, key, partitionKey("user_123456"))
	assert.Regexp(t, regexp.MustCompile(`^user_123456#\d{4}$`), key)

	buckets := map[string]bool{}
	for _, user := range []string{"user_1", "user_2", "user_3", "user_4", "user_5"} {
		buckets[strings.SplitN(partitionKey(user), "#", 2)[1]] = true
	}
	assert.Greater(t, len(buckets), 1)
}

func TestSendBatch_RequeuesThrottledRecords(t *testing.T) {
	client := &fakeKinesis{results: []putResult{
		{out: throttledOut(5, 1, 3)},
	}}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	}
	require.NoError(t, p.Flush(ctx))

	calls := client.calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Records, 5)
	assert.Len(t, calls[1].Records, 2)
	assert.Equal(t, calls[0].Records[1].PartitionKey, calls[1].Records[0].PartitionKey)
	assert.Equal(t, calls[0].Records[3].PartitionKey, calls[1].Records[1].PartitionKey)

	window := p.Metrics()
	assert.Equal(t, 5, window.Sent)
	assert.Zero(t, window.Failed)
	assert.Equal(t, 2, window.Throttles)
	assert.Equal(t, 1, window.Retries)
}

func TestSendBatch_DropsRecordsRejectedForOtherReasons(t *testing.T) {
	client := &fakeKinesis{results: []putResult{
		{out: failedOut(4, map[int]string{2: "InternalFailure"})},
	}}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	}
	require.NoError(t, p.Flush(ctx))

	require.Len(t, client.calls(), 1)
	window := p.Metrics()
	assert.Equal(t, 3, window.Sent)
	assert.Equal(t, 1, window.Failed)
	assert.Zero(t, window.Throttles)
}

func TestSendBatch_RetriesThrottledRequests(t *testing.T) {
	throttle := &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	client := &fakeKinesis{results: []putResult{{err: throttle}, {err: throttle}}}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	require.NoError(t, p.Flush(ctx))

	require.Len(t, client.calls(), 3)
	window := p.Metrics()
	assert.Equal(t, 1, window.Sent)
	assert.Equal(t, 2, window.Throttles)
	assert.Equal(t, 2, window.Retries)
}

func TestSendBatch_GivesUpAfterConfiguredAttempts(t *testing.T) {
	throttle := &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	client := &fakeKinesis{results: []putResult{{err: throttle}, {err: throttle}, {err: throttle}}}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	err := p.Flush(ctx)

	assert.ErrorContains(t, err, "3 attempts")
	assert.Len(t, client.calls(), 3)
	window := p.Metrics()
	assert.Zero(t, window.Sent)
	assert.Equal(t, 1, window.Failed)
}

func TestSendBatch_NonRetryableErrorFailsFast(t *testing.T) {
	client := &fakeKinesis{results: []putResult{
		{err: &types.InvalidArgumentException{Message: aws.String("bad request")}},
	}}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	err := p.Flush(ctx)

	assert.Error(t, err)
	assert.Len(t, client.calls(), 1)
	assert.Equal(t, 1, p.Metrics().Failed)
}

func TestBreaker_OpensAndCoolsDown(t *testing.T) {
	bad := &types.InvalidArgumentException{Message: aws.String("bad request")}
	client := &fakeKinesis{results: []putResult{{err: bad}, {err: bad}, {err: bad}}}
	config := testProducerConfig()
	config.RetryAttempts = 1
	p := New(client, "posts", config)
	fakeClock := testingclock.NewFakeClock(time.Now())
	p.clock = fakeClock
	g := generator.New(42)

	ctx := context.Background()
	for i := 0; i < config.BreakerThreshold; i++ {
		require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
		require.Error(t, p.Flush(ctx))
	}
	require.Len(t, client.calls(), 3)

	// Open: the batch is dropped without reaching the stream.
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, client.calls(), 3)
	assert.Equal(t, 4, p.Metrics().Failed)

	// After the cooldown the next batch goes through again.
	fakeClock.Step(config.BreakerCooldown + time.Second)
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, client.calls(), 4)
}

func TestRun_FlushTimerDeliversIdleBatches(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	assert.Eventually(t, func() bool { return len(client.calls()) == 1 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_DrainsPendingRecordsOnShutdown(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Len(t, client.calls(), 1)
	assert.Equal(t, 1, p.Metrics().Sent)
}

func TestResetWindow(t *testing.T) {
	client := &fakeKinesis{}
	p := New(client, "posts", testProducerConfig())
	g := generator.New(42)

	ctx := context.Background()
	require.NoError(t, p.Send(ctx, g.Generate(1, generator.PostTypeOriginal)))
	require.NoError(t, p.Flush(ctx))

	window := p.ResetWindow()
	assert.Equal(t, 1, window.Sent)
	assert.InDelta(t, 100, window.SuccessRate(), 0.01)
	assert.Greater(t, window.AverageRecordSize(), float64(0))

	assert.Zero(t, p.Metrics().Sent)
	assert.InDelta(t, 100, p.Metrics().SuccessRate(), 0.01)
}

func testProducerConfig() configuration.ProducerConfiguration {
	return configuration.ProducerConfiguration{
		MaxBatchWait:     10 * time.Millisecond,
		RetryAttempts:    3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
	}
}

type putResult struct {
	out *kinesis.PutRecordsOutput
	err error
}

// fakeKinesis replays queued results in order and reports success once the
// queue is exhausted.
type fakeKinesis struct {
	mu       sync.Mutex
	recorded []*kinesis.PutRecordsInput
	results  []putResult
}

func (f *fakeKinesis) PutRecords(_ context.Context, params *kinesis.PutRecordsInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, params)
	if len(f.results) > 0 {
		result := f.results[0]
		f.results = f.results[1:]
		return result.out, result.err
	}
	return successOut(len(params.Records)), nil
}

func (f *fakeKinesis) calls() []*kinesis.PutRecordsInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kinesis.PutRecordsInput{}, f.recorded...)
}

func successOut(count int) *kinesis.PutRecordsOutput {
	out := &kinesis.PutRecordsOutput{FailedRecordCount: aws.Int32(0)}
	for i := 0; i < count; i++ {
		out.Records = append(out.Records, types.PutRecordsResultEntry{SequenceNumber: aws.String("1")})
	}
	return out
}

// throttledOut builds a response where the given indexes were throttled.
func throttledOut(count int, throttledIndexes ...int) *kinesis.PutRecordsOutput {
	codes := map[int]string{}
	for _, i := range throttledIndexes {
		codes[i] = throttleErrorCode
	}
	return failedOut(count, codes)
}

func failedOut(count int, codes map[int]string) *kinesis.PutRecordsOutput {
	out := &kinesis.PutRecordsOutput{FailedRecordCount: aws.Int32(int32(len(codes)))}
	for i := 0; i < count; i++ {
		entry := types.PutRecordsResultEntry{}
		if code, failed := codes[i]; failed {
			entry.ErrorCode = aws.String(code)
			entry.ErrorMessage = aws.String("injected failure")
		} else {
			entry.SequenceNumber = aws.String("1")
		}
		out.Records = append(out.Records, entry)
	}
	return out
}
