package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesChain(t *testing.T) {
	base := New(ErrorTypeTransientFetch, "503 from upstream")
	wrapped := Wrap(base, ErrorTypeDeadline, "run deadline reached")

	assert.Equal(t, ErrorTypeDeadline, TypeOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, Is(wrapped, base))
	assert.Equal(t, base.Stack, wrapped.Stack)
	assert.Equal(t, "deadline_exceeded: run deadline reached: transient_fetch: 503 from upstream", wrapped.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeWrite, "ignored"))
}

func TestWrap_StdlibCause(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, ErrorTypeDeadline, "fetch timed out")
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.NotEmpty(t, err.Stack)
}

func TestTypeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("boom")))
	assert.False(t, IsType(fmt.Errorf("boom"), ErrorTypeInternal))
}

func TestIsType_ThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("partition 42: %w", New(ErrorTypeFatalFetch, "board not found"))
	assert.True(t, IsType(err, ErrorTypeFatalFetch))

	var e *Error
	require.True(t, As(err, &e))
	assert.Equal(t, "board not found", e.Message)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeNormalization, "item has no id").
		WithDetail("partition_id", "101").
		WithDetail("index", 3)

	assert.Equal(t, map[string]interface{}{"partition_id": "101", "index": 3}, err.Details)
}
