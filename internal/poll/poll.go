// Package poll provides the two waiting primitives the validation flow is
// built on: a fixed-interval predicate poll and a backoff retry.
package poll

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Interval polls fn at a fixed interval until it reports done, fn returns an
// error, the timeout elapses, or ctx is cancelled. The first call happens
// immediately, not after one interval. A timeout is not an error: Interval
// returns (false, nil) so callers can branch on the outcome without
// unwrapping.
func Interval(ctx context.Context, interval, timeout time.Duration, fn func(context.Context) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return false, nil
			}
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Retry calls fn with exponential backoff until it succeeds or maxElapsed
// passes. Used for probes where the first attempts are expected to fail
// while the target warms up.
func Retry(ctx context.Context, initial, maxInterval, maxElapsed time.Duration, fn func() error) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	return backoff.Retry(fn, backoff.WithContext(b, ctx))
}
