package helpers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/pkg/errors"
)

// RetryPolicy retries transient fetch failures with exponential backoff
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Do runs op until it succeeds, fails permanently, or runs out of retries.
// Only errors for which errors.IsRetryable is true are retried.
func (p RetryPolicy) Do(ctx context.Context, provider string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.ForSite(provider).Warn().
			Err(err).
			Dur("wait", wait).
			Msg("Retrying request")
	}

	return backoff.RetryNotify(operation, policy, notify)
}
