// Package mcp exposes the core operations as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperr "github.com/zoonderkins/augment-lite-mcp/internal/errors"
)

// Custom MCP error codes, alongside the standard JSON-RPC ones.
const (
	ErrCodeNotFound      = -32001
	ErrCodeAlreadyExists = -32002
	ErrCodeTimeout       = -32003
	ErrCodeCorrupt       = -32004
	ErrCodeUnavailable   = -32005

	ErrCodeInvalidParams = -32602
	ErrCodeInternal      = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError reports a malformed tool input.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts internal errors to protocol errors. Error kinds carry
// through; anything unclassified becomes an internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &MCPError{Code: ErrCodeTimeout, Message: "request was canceled"}
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: err.Error()}
	case apperr.KindAlreadyExists:
		return &MCPError{Code: ErrCodeAlreadyExists, Message: err.Error()}
	case apperr.KindInvalid:
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	case apperr.KindCorrupt:
		return &MCPError{Code: ErrCodeCorrupt, Message: err.Error()}
	case apperr.KindUnavailable, apperr.KindTransient:
		return &MCPError{Code: ErrCodeUnavailable, Message: err.Error()}
	case apperr.KindCancelled:
		return &MCPError{Code: ErrCodeTimeout, Message: err.Error()}
	default:
		return &MCPError{Code: ErrCodeInternal, Message: err.Error()}
	}
}
