package utils

import (
	"context"
	"time"
)

var sleep = time.Sleep

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	pause := sleep
	done := make(chan struct{})
	go func() {
		defer close(done)
		pause(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Backoff describes a capped exponential retry policy.
type Backoff struct {
	// Attempts is the number of retries after the first call.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

const backoffFactor = 2

// DefaultBackoff is used by collaborator clients that were not given a policy.
var DefaultBackoff = Backoff{Attempts: 3, Initial: time.Second, Max: 30 * time.Second}

// Retry calls fn until it succeeds, returns a non-retryable error, or the attempts run out.
// The last error is returned unchanged so callers can still match it with errors.Is/As.
func Retry(ctx context.Context, policy Backoff, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if policy.Attempts < 0 {
		policy.Attempts = 0
	}
	delay := policy.Initial

	var err error
	for attempt := 0; attempt <= policy.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == policy.Attempts || retryable == nil || !retryable(err) {
			return err
		}

		if waitErr := WaitFor(ctx, delay); waitErr != nil {
			return err
		}

		delay *= backoffFactor
		if policy.Max > 0 && delay > policy.Max {
			delay = policy.Max
		}
	}

	return err
}
