// Package errors provides structured error handling for augment-lite-mcp.
//
// Every error surfaced by the core carries a Kind that maps directly to a
// tool-protocol response category. Components wrap causes with context and
// the outermost layer (internal/mcp) translates kinds to protocol errors.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and tool-protocol mapping.
type Kind string

const (
	// KindNotFound indicates a missing project, chunk, or symbol.
	KindNotFound Kind = "NOT_FOUND"
	// KindAlreadyExists indicates a conflicting project name on add.
	KindAlreadyExists Kind = "ALREADY_EXISTS"
	// KindDimensionMismatch indicates the embedder returned the wrong dimension.
	KindDimensionMismatch Kind = "DIMENSION_MISMATCH"
	// KindTransient indicates a network error, 5xx, or timeout. Retryable.
	KindTransient Kind = "TRANSIENT"
	// KindCorrupt indicates an index or state file failed schema validation.
	KindCorrupt Kind = "CORRUPT"
	// KindCancelled indicates the caller cancelled the request.
	KindCancelled Kind = "CANCELLED"
	// KindUnavailable indicates a subsystem produced no result after retries.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindInvalid indicates invalid caller input.
	KindInvalid Kind = "INVALID"
	// KindFatal indicates an invariant violation. The server keeps serving
	// other projects; the violation is logged with context.
	KindFatal Kind = "FATAL"
	// KindInternal indicates an unexpected internal error.
	KindInternal Kind = "INTERNAL"
)

// AppError is the structured error type for the core.
type AppError struct {
	// Kind is the error classification.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by kind, enabling errors.Is against kind sentinels.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error and returns it for chaining.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates a new AppError with a formatted message.
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AppError wrapping an existing error.
// Returns nil if err is nil.
func Wrap(kind Kind, message string, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: kind, Message: message, Cause: err}
}

// NotFound creates a NotFound error for the given entity.
func NotFound(entity, selector string) *AppError {
	return Newf(KindNotFound, "%s not found: %s", entity, selector)
}

// AlreadyExists creates an AlreadyExists error.
func AlreadyExists(entity, name string) *AppError {
	return Newf(KindAlreadyExists, "%s already exists: %s", entity, name)
}

// DimensionMismatch creates a DimensionMismatch error.
func DimensionMismatch(expected, got int) *AppError {
	return Newf(KindDimensionMismatch, "embedding dimension mismatch: expected %d, got %d", expected, got)
}

// Transient creates a retryable Transient error wrapping err.
func Transient(message string, err error) *AppError {
	return &AppError{Kind: KindTransient, Message: message, Cause: err}
}

// Corrupt creates a Corrupt error for a backing file.
func Corrupt(path string, err error) *AppError {
	return &AppError{Kind: KindCorrupt, Message: "backing file failed validation: " + path, Cause: err}
}

// KindOf extracts the kind from an error chain. Context cancellation maps to
// KindCancelled; any other non-AppError maps to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether the error chain contains an AppError of the kind.
func IsKind(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	return IsKind(err, KindTransient)
}
