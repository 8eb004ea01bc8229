// Package retry provides a single reusable retrying-operation wrapper
// used for network and storage calls throughout the pipeline. Callers
// supply an error classifier; transient errors are retried with
// exponential backoff, permanent errors abort immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default backoff parameters.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 10 * time.Second
)

// Classifier reports whether an error is transient and worth retrying.
type Classifier func(err error) bool

// Config parameterizes the retry wrapper.
type Config struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether an error is retried. A nil classifier
	// retries every error.
	Retryable Classifier
}

// withDefaults fills in zero-valued fields.
func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	return c
}

// Do runs op, retrying transient failures with exponential backoff until
// the attempt budget is exhausted or the context is cancelled. The last
// error is returned.
func Do(ctx context.Context, cfg Config, op func() error) error {
	cfg = cfg.withDefaults()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = cfg.InitialInterval
	expo.MaxInterval = cfg.MaxInterval

	policy := backoff.WithContext(
		backoff.WithMaxRetries(expo, cfg.MaxAttempts-1),
		ctx,
	)

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, policy)
}
