// Package mcp implements the coordinator's serving endpoint over the
// Model Context Protocol. A request failure is isolated here: it maps
// to a protocol error and never propagates into the watch pipeline.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

// Protocol error codes.
const (
	// ErrCodeStoreUnavailable indicates the store cannot be reached.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// ProtocolError is a JSON-RPC level error with code and message.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(msg string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors to protocol errors.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var ce *cocoerrors.CocoError
	if errors.As(err, &ce) {
		switch ce.Category {
		case cocoerrors.CategoryStore:
			return &ProtocolError{Code: ErrCodeStoreUnavailable, Message: ce.Message}
		default:
			return &ProtocolError{Code: ErrCodeInternalError, Message: ce.Message}
		}
	}

	switch {
	case errors.Is(err, cocoerrors.ErrCircuitOpen):
		return &ProtocolError{
			Code:    ErrCodeStoreUnavailable,
			Message: "Store queries are temporarily suspended after repeated failures.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &ProtocolError{Code: ErrCodeTimeout, Message: "Request was cancelled."}
	default:
		return &ProtocolError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
