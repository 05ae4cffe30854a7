// Package errors provides examples of structured error handling in boardlake.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// Example demonstrates basic error creation with context.
func Example() {
	err := errors.New(errors.ErrorTypeFatalFetch, "board not found").
		WithDetail("partition_id", "6255740472")

	fmt.Println(err.Error())

	// Output:
	// fatal_fetch: board not found
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeTransientFetch, "failed to read page").
		WithDetail("cursor", "MSw2MjU1")

	if errors.IsType(err, errors.ErrorTypeTransientFetch) {
		fmt.Println("transient")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("cause preserved")
	}

	// Output:
	// transient
	// cause preserved
}

// ExampleIsRetryable demonstrates retry decisions.
func ExampleIsRetryable() {
	transient := errors.New(errors.ErrorTypeTransientFetch, "upstream returned 503")
	fatal := errors.New(errors.ErrorTypeFatalFetch, "upstream returned 401")

	fmt.Println(errors.IsRetryable(transient))
	fmt.Println(errors.IsRetryable(fatal))
	fmt.Println(errors.IsRetryable(io.EOF))

	// Output:
	// true
	// false
	// false
}

// ExampleTypeOf shows how the pipeline maps errors onto partition outcomes.
func ExampleTypeOf() {
	wrapped := fmt.Errorf("partition 2: %w", errors.New(errors.ErrorTypeDeadline, "run deadline exceeded"))

	fmt.Println(errors.TypeOf(wrapped))
	fmt.Println(errors.TypeOf(io.EOF))

	// Output:
	// deadline_exceeded
	// internal
}
