package tracker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is the single admission gate for outbound tracker requests.
// Concurrent lookups all wait on the same limiter, so the aggregate
// request rate never exceeds the provider's ceiling no matter how many
// keys are in flight. rate.Limiter satisfies this interface; tests
// inject a counting fake so they run without real waits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewWindowLimiter builds a token-bucket limiter admitting at most rpm
// requests per rolling minute, with no burst. When minInterval is
// stricter than the window pacing (the sequential-strategy delay), it
// becomes the admission interval instead.
func NewWindowLimiter(rpm int, minInterval time.Duration) Limiter {
	interval := time.Minute / time.Duration(rpm)
	if minInterval > interval {
		interval = minInterval
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Clock abstracts time so retry and rate-limit backoffs are testable
// without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until the context is done, whichever is first.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
