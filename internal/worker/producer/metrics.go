package producer

import "time"

// Metrics is the windowed view of producer activity since the last reset.
// The periodic report logs a snapshot and starts a new window.
type Metrics struct {
	Sent         int
	Failed       int
	Throttles    int
	Retries      int
	Batches      int
	Bytes        int
	TotalLatency time.Duration
	LastSend     time.Time
}

// AverageLatency is the mean delivery latency per record in the window.
func (m Metrics) AverageLatency() time.Duration {
	if m.Sent == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.Sent)
}

// AverageRecordSize is the mean wire size per delivered record in bytes.
func (m Metrics) AverageRecordSize() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.Bytes) / float64(m.Sent)
}

// SuccessRate is the percentage of records delivered out of all attempted.
// An idle window reports 100.
func (m Metrics) SuccessRate() float64 {
	total := m.Sent + m.Failed
	if total == 0 {
		return 100
	}
	return float64(m.Sent) / float64(total) * 100
}
