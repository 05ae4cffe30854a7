package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// RetryPolicy defines bounded exponential backoff with jitter.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// RetryHook observes a failed attempt once its backoff has elapsed, just
// before the retry runs. It is not called when ctx ends during backoff.
type RetryHook func(attempt int, delay time.Duration, err error)

// ExecuteWithCondition runs fn until it succeeds, returns an error that
// shouldRetry rejects, or MaxAttempts is reached. The last error is returned
// unchanged so callers can classify it. Cancellation during backoff yields an
// ErrorTypeDeadline error.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool, onRetry RetryHook) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == attempts-1 {
			break
		}

		delay := rp.calculateDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(lastErr, errors.ErrorTypeDeadline, "retry cancelled")
		case <-timer.C:
		}

		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}
	}

	return lastErr
}

func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter only
	}

	return time.Duration(delay)
}
