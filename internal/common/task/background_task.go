// Package task runs registered functions on a fixed interval in the
// background, with a latency histogram per task and a bounded stop.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BackgroundTaskManager struct {
	metricsPrefix string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundTaskManager{
		metricsPrefix: metricsPrefix,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Register runs backgroundTask every interval until StopAll is called. The
// first run happens after one interval, not immediately.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	latency := promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    m.metricsPrefix + metricName + "_latency_seconds",
		Help:    "Background task " + metricName + " latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				backgroundTask()
				latency.Observe(time.Since(start).Seconds())
			}
		}
	}()
}

// StopAll stops every task and waits up to timeout for in-flight runs to
// finish. It reports whether the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
