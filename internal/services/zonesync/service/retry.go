package service

import (
	"context"
	"time"

	perr "zonepulse/internal/platform/errors"
)

// RetryPolicy is the value object governing per-day fetch attempts.
// Retryability is decided by the error code taxonomy: transient upstream
// failures (unavailable, rate limited) are retried, everything else is
// terminal on the first attempt
type RetryPolicy struct {
	MaxAttempts int           // total attempts; <=0 -> 1
	Delay       time.Duration // fixed delay between attempts
}

// Attempt runs fn under the policy, sleeping the fixed delay between
// retryable failures. Context cancellation aborts between attempts
func Attempt(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !perr.Retryable(last) {
			return last
		}
		if i == attempts-1 {
			break
		}
		if err := sleepCtx(ctx, p.Delay); err != nil {
			return err
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
