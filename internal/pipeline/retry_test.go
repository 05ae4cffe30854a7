package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

func TestRetryPolicy_StopsOnNonRetryable(t *testing.T) {
	rp := fastRetry()
	calls := 0
	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeFatalFetch, "bad query")
	}, errors.IsRetryable, nil)

	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFatalFetch))
}

func TestRetryPolicy_ReturnsLastError(t *testing.T) {
	rp := fastRetry()
	var hooks []int
	calls := 0
	err := rp.ExecuteWithCondition(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeTransientFetch, "503")
	}, errors.IsRetryable, func(attempt int, _ time.Duration, _ error) {
		hooks = append(hooks, attempt)
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, hooks)
	assert.True(t, errors.IsRetryable(err))
}

func TestRetryPolicy_CancelledDuringBackoff(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rp.ExecuteWithCondition(ctx, func() error {
		return errors.New(errors.ErrorTypeTransientFetch, "503")
	}, errors.IsRetryable, nil)

	assert.True(t, errors.IsType(err, errors.ErrorTypeDeadline))
}

func TestRetryPolicy_CancelledBackoffIsNotCounted(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls, hooks := 0, 0
	err := rp.ExecuteWithCondition(ctx, func() error {
		calls++
		return errors.New(errors.ErrorTypeTransientFetch, "503")
	}, errors.IsRetryable, func(int, time.Duration, error) {
		hooks++
	})

	assert.True(t, errors.IsType(err, errors.ErrorTypeDeadline))
	assert.Equal(t, 1, calls)
	assert.Zero(t, hooks)
}

func TestRetryPolicy_DelayBounds(t *testing.T) {
	rp := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, RandomizeFactor: 0.25}
	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, time.Second, time.Second} {
		d := rp.calculateDelay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(float64(want)*0.75))
		assert.LessOrEqual(t, d, time.Duration(float64(want)*1.25))
	}
}

func TestPartitionStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateStart, StateFetching))
	assert.True(t, canTransition(StateFetching, StateFetching))
	assert.True(t, canTransition(StateFetching, StateDone))
	assert.True(t, canTransition(StateStart, StateFailed))
	assert.False(t, canTransition(StateDone, StateFetching))
	assert.False(t, canTransition(StateFailed, StateDone))
	assert.False(t, canTransition(StateStart, StateDone))

	r := &PartitionResult{State: StateDone}
	assert.Panics(t, func() { r.transition(StateFetching) })
}
