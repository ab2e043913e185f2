// Package retry runs an operation under a bounded attempt count with a backoff
// delay between attempts.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Backoff receives the number of the attempt that just
// failed, starting at 1.
type Policy struct {
	MaxAttempts int
	Backoff     func(failedAttempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Exponential returns a backoff that starts at base and doubles after every
// failed attempt: base, 2*base, 4*base...
func Exponential(base time.Duration) func(int) time.Duration {
	return func(failedAttempt int) time.Duration {
		if failedAttempt < 1 {
			failedAttempt = 1
		}
		return base << (failedAttempt - 1)
	}
}

// Default is three attempts with 100ms and 200ms waits in between.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Exponential(100 * time.Millisecond),
	}
}

// Do calls op until it succeeds or the policy runs out of attempts. The error of
// the last attempt is returned wrapped with the attempt count. A cancelled
// context stops the loop during a wait.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = op(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, err)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
