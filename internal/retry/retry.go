// Package retry runs an operation under a bounded attempt budget, retrying only
// the errors its classifier accepts.
package retry

import (
	"context"
	"time"
)

// Policy is a bounded retry policy with exponential backoff
type Policy struct {
	// MaxAttempts counts the first call; 1 disables retry
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retryable decides whether an error is worth another attempt
	Retryable func(error) bool
	// OnRetry is called before sleeping; optional
	OnRetry func(attempt int, err error, wait time.Duration)

	sleep func(ctx context.Context, d time.Duration) error
}

// WithoutSleep returns a copy whose backoff returns immediately (for tests)
func (p Policy) WithoutSleep() Policy {
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

// Backoff returns the wait before the given retry (attempt 1 is the first retry)
func (p Policy) Backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 || attempt < 1 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do calls op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts || p.Retryable == nil || !p.Retryable(err) {
			return attempt, err
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return attempt, err
		}
	}
	return maxAttempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
