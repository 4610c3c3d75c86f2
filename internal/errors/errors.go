package errors

import (
	"errors"
	"fmt"
)

// CocoError is the structured error type for cocowatch.
// It provides rich context for error handling, logging, and fault
// classification by the mode controller.
type CocoError struct {
	// Code is the unique error code (e.g., "ERR_202_WATCH_LOST").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Watch, Index, Store, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *CocoError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CocoError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CocoError.
func (e *CocoError) Is(target error) bool {
	if t, ok := target.(*CocoError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CocoError) WithDetail(key, value string) *CocoError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CocoError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CocoError {
	return &CocoError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CocoError from an existing error.
// The error's message becomes the CocoError message.
func Wrap(code string, err error) *CocoError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// WatchError creates a watch subscription error. Fatal when the
// subscription never succeeded, degraded-retry afterwards; callers pick
// the code accordingly.
func WatchError(code string, message string, cause error) *CocoError {
	return New(code, message, cause)
}

// IndexTransient creates a retryable indexing error (connectivity-class).
func IndexTransient(message string, cause error) *CocoError {
	return New(ErrCodeIndexTransient, message, cause)
}

// IndexFatal creates a non-retryable indexing error (malformed flow-class).
func IndexFatal(message string, cause error) *CocoError {
	return New(ErrCodeIndexFatal, message, cause)
}

// StoreUnavailable creates a retryable store connectivity error.
func StoreUnavailable(message string, cause error) *CocoError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// ServeError creates a per-request serving error. Never crashes the
// coordinator; isolated at the endpoint.
func ServeError(message string, cause error) *CocoError {
	return New(ErrCodeServeRequest, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CocoError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable checks if an error is retryable.
// Walks the error chain so wrapped CocoErrors classify correctly.
func IsRetryable(err error) bool {
	var ce *CocoError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ce *CocoError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CocoError in the chain.
// Returns empty string if none is found.
func GetCode(err error) string {
	var ce *CocoError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CocoError in the chain.
// Returns empty string if none is found.
func GetCategory(err error) Category {
	var ce *CocoError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
