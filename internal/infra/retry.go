package infra

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// retry calls fn until it succeeds, attempts run out or ctx is done. Pauses
// grow exponentially from connectBackoff.
func retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = connectBackoff
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		return fn(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
}
