package service

import (
	"context"
	"time"
)

// RetryPolicy bounds verification retries: MaxAttempts total calls, with
// the wait before attempt n+1 growing linearly from BaseDelay. Injected so
// tests can drive the schedule with a fake sleeper instead of real timers.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait after the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// SleepFunc blocks for d or until the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
