// Package errors provides structured error handling for boardlake with error
// categorization, key-value context and stack capture.
//
// Every failure raised by the extraction core carries an ErrorType so callers
// can decide between retrying, skipping a record, failing one partition or
// failing the whole run:
//
//	err := errors.New(errors.ErrorTypeFatalFetch, "board not found").
//	    WithDetail("partition_id", id)
//
//	if errors.IsRetryable(err) {
//	    // back off and try again
//	}
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeTransientFetch is a retryable upstream failure (network, timeout, 429, 5xx)
	ErrorTypeTransientFetch ErrorType = "transient_fetch"
	// ErrorTypeFatalFetch is a non-retryable upstream failure (auth, bad query, bad payload)
	ErrorTypeFatalFetch ErrorType = "fatal_fetch"
	// ErrorTypeNormalization marks a record that cannot be flattened into a row
	ErrorTypeNormalization ErrorType = "normalization"
	// ErrorTypeSerialization marks row data the columnar encoder rejected
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeWrite marks a failed durable put
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeDeadline marks work cancelled by the run deadline
	ErrorTypeDeadline ErrorType = "deadline_exceeded"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNoData marks a run in which no partition produced rows
	ErrorTypeNoData ErrorType = "no_data"
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error so errors.Is and errors.As see the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a type and message. If err is already a
// structured Error its stack is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if stderrors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether err is a transient fetch failure.
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeTransientFetch
}

// IsType checks if the outermost structured error in the chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or
// ErrorTypeInternal for plain errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !stderrors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// Is is errors.Is re-exported so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
