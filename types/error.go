package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the control loop.
type ErrorCode string

// Governor error codes
const (
	ErrBudgetInsufficient ErrorCode = "BUDGET_INSUFFICIENT"
	ErrUnknownTier        ErrorCode = "UNKNOWN_TIER"
)

// Breaker error codes
const (
	ErrBreakerExhausted ErrorCode = "BREAKER_EXHAUSTED"
	ErrAttemptTimeout   ErrorCode = "ATTEMPT_TIMEOUT"
)

// Stream error codes
const (
	ErrStreamTotalFailure ErrorCode = "STREAM_TOTAL_FAILURE"
	ErrCheckpointNotFound ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrCheckpointCorrupt  ErrorCode = "CHECKPOINT_CORRUPT"
)

// Lifecycle error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrRunCancelled  ErrorCode = "RUN_CANCELLED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Operation string    `json:"operation,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithOperation sets the operation-class name that produced the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Unwrap()
	}
	return false
}
