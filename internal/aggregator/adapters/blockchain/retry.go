package blockchain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the retries of transient read errors.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:      3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// NoRetry performs each read exactly once.
var NoRetry = RetryConfig{}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	if c.MaxRetries == 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		exp.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		exp.MaxInterval = c.MaxInterval
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.MaxRetries), ctx)
}
