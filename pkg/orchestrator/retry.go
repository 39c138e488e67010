package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule returns the wait after the n-th failed attempt (1-based).
type schedule func(n int) time.Duration

func fixedDelay(d time.Duration) schedule {
	return func(int) time.Duration { return d }
}

func linearDelay(step time.Duration) schedule {
	return func(n int) time.Duration { return time.Duration(n) * step }
}

// boundedBackOff stops after maxAttempts operations.
type boundedBackOff struct {
	next        schedule
	maxAttempts int
	failed      int
}

func (b *boundedBackOff) NextBackOff() time.Duration {
	b.failed++
	if b.failed >= b.maxAttempts {
		return backoff.Stop
	}
	return b.next(b.failed)
}

func (b *boundedBackOff) Reset() { b.failed = 0 }

// repeat runs op until it returns nil, returns a backoff.Permanent error,
// or maxAttempts is reached; the last error is returned in the latter case.
// op receives the 1-based attempt number.
func repeat(ctx context.Context, maxAttempts int, next schedule, timer backoff.Timer, op func(attempt int) error) error {
	attempt := 0
	b := backoff.WithContext(&boundedBackOff{next: next, maxAttempts: maxAttempts}, ctx)
	return backoff.RetryNotifyWithTimer(func() error {
		attempt++
		return op(attempt)
	}, b, nil, timer)
}

// sleep suspends for d on the given timer or until ctx is done.
func sleep(ctx context.Context, timer backoff.Timer, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	defer timer.Stop()
	timer.Start(d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// clockTimer is a backoff.Timer on the wall clock.
type clockTimer struct {
	timer *time.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
