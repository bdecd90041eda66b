package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // ceiling on any single delay
	Multiplier  float64       // backoff factor per attempt
	Jitter      bool          // +/- 50% randomization to spread herds
	OnRetry     func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the gateway's default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    32 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay calculates the backoff delay for retry attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(p.MaxDelay))
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	return time.Duration(delay)
}

// Retry executes fn under the policy. Only retryable errors are retried.
// A backend-supplied retry-after hint overrides the backoff schedule for
// that attempt.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxAttempts-1; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if hint := retryAfterHint(err); hint != nil {
			hintDelay := time.Duration(*hint * float64(time.Second))
			if hintDelay > policy.MaxDelay {
				// The backend asked for longer than we are willing
				// to wait; surface the error instead.
				return zero, err
			}
			delay = hintDelay
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{GatewayError: GatewayError{Message: "query cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
