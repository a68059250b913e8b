package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DEFAULT_RETRY_ATTEMPTS = 3
	DEFAULT_RETRY_DELAY    = time.Second
)

// RetryPolicy waits BaseDelay * n before attempt n+1
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration

	// Called before every retry, not on the first attempt
	OnRetry func(name string, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DEFAULT_RETRY_ATTEMPTS,
		BaseDelay: DEFAULT_RETRY_DELAY,
	}
}

type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// RetryValue runs op until it succeeds, the policy is exhausted, or ctx is done.
// The last error is returned wrapped with name.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, name string, op func() (T, error)) (T, error) {

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = &linearBackOff{base: policy.BaseDelay}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(log.Fields{
			"Op": name, "Delay": next,
		}).Debug("Retrying")

		if policy.OnRetry != nil {
			policy.OnRetry(name, err)
		}
	}

	res, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "%s failed after %d attempts", name, attempts)
	}

	return res, nil
}

// Retry is RetryValue for operations without a result
func Retry(ctx context.Context, policy RetryPolicy, name string, op func() error) error {

	_, err := RetryValue(ctx, policy, name, func() (struct{}, error) {
		return struct{}{}, op()
	})

	return err
}
