package retry

import (
	"context"
	"time"
)

// Policy describes an exponential backoff retry schedule.
// Attempt n (1-based) sleeps BaseDelay * Multiplier^(n-1) before retrying,
// capped at MaxDelay.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first one.
	BaseDelay   time.Duration // Delay before the first retry.
	MaxDelay    time.Duration // Upper bound for any single delay.
	Multiplier  float64       // Exponential backoff multiplier.
}

// Retryable decides whether the error returned by an attempt warrants
// another try. Returning false stops the loop immediately.
type Retryable func(err error) bool

// Delay returns the backoff delay to apply after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, the policy is exhausted, the error is not
// retryable, or ctx is done. It returns the number of attempts made and the
// last error (nil on success). Context cancellation during a backoff sleep
// returns ctx.Err().
func Do(ctx context.Context, p Policy, retryable Retryable, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return attempts, lastErr
}
