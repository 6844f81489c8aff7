package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary")

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	original := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = original })
	return &slept
}

func TestRetrySucceedsAfterTemporaryErrors(t *testing.T) {
	slept := stubSleep(t)

	calls := 0
	err := Retry(context.Background(), Backoff{Attempts: 3, Initial: time.Second, Max: 3 * time.Second},
		func(err error) bool { return errors.Is(err, errTemporary) },
		func(context.Context) error {
			calls++
			if calls < 4 {
				return errTemporary
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("wait %d: expected %s, got %s", i, d, (*slept)[i])
		}
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	stubSleep(t)
	permanent := errors.New("bad request")

	calls := 0
	err := Retry(context.Background(), Backoff{Attempts: 5, Initial: time.Millisecond},
		func(err error) bool { return errors.Is(err, errTemporary) },
		func(context.Context) error {
			calls++
			return permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	stubSleep(t)

	calls := 0
	err := Retry(context.Background(), Backoff{Attempts: 2, Initial: time.Millisecond},
		func(error) bool { return true },
		func(context.Context) error {
			calls++
			return errTemporary
		})
	if !errors.Is(err, errTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWaitForHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WaitFor(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for zero delay on a done context, got %v", err)
	}
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil for zero delay, got %v", err)
	}
}
