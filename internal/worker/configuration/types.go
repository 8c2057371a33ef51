package configuration

import "time"

type Configuration struct {
	// Port used to expose the health endpoint
	HttpPort uint16 `validate:"required"`
	// Port used to expose prometheus metrics
	MetricsPort uint16 `validate:"required"`
	// Region the stream lives in; resolved from the environment if empty
	Region    string
	Stream    StreamConfiguration
	Producer  ProducerConfiguration
	Generator GeneratorConfiguration
	// Interval between metrics summary log blocks
	MetricsReportInterval time.Duration `validate:"required"`
}

type StreamConfiguration struct {
	Name string `validate:"required"`
}

type ProducerConfiguration struct {
	// Longest a partially filled batch is held before being flushed
	MaxBatchWait time.Duration `validate:"required"`
	// Retry policy for a failed or throttled batch
	RetryAttempts  int           `validate:"required,min=1"`
	RetryBaseDelay time.Duration `validate:"required"`
	RetryMaxDelay  time.Duration `validate:"required"`
	// Consecutive batch failures that open the circuit breaker, and how long
	// it stays open
	BreakerThreshold int           `validate:"required,min=1"`
	BreakerCooldown  time.Duration `validate:"required"`
}

type GeneratorConfiguration struct {
	// Seed for the content generator. Zero seeds from the clock so that tasks
	// sharing one task definition still produce distinct content; a fixed seed
	// gives reproducible output for local runs.
	Seed int64
}
