package config

import "time"

const (
	DefaultMaxRetries        = 3
	DefaultRetryInitialDelay = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
)

type RetryConfig interface {
	GetMaxRetries() int
	GetRetryInitialDelay() time.Duration
	GetRetryMaxDelay() time.Duration
}

// Retry bounds the transport's retries of transient failures.
type Retry struct {
	MaxRetries        int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

var _ RetryConfig = Retry{}

func (r Retry) GetMaxRetries() int {
	return r.MaxRetries
}

func (r Retry) GetRetryInitialDelay() time.Duration {
	return r.RetryInitialDelay
}

func (r Retry) GetRetryMaxDelay() time.Duration {
	return r.RetryMaxDelay
}
