// Package errors provides the unified error type and factory functions for
// the MorphoScreen platform. Every layer of the application (domain,
// analytics, application, infrastructure, interfaces) uses AppError as the
// single carrier for structured error information, enabling consistent HTTP
// responses, logging, and the degenerate-input propagation policy: a
// per-compound failure carries a typed code that the orchestrator inspects
// to decide between "exclude and continue" and "abort the run".
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames
// above the caller (skipping captureStack itself and New/Wrap).
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		// Trim standard-library noise to keep traces readable.
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AppError is the single structured error type used throughout MorphoScreen.
// It satisfies the standard error interface and supports Go 1.13+ error
// wrapping so that errors.Is / errors.As / errors.Unwrap work transparently
// across all layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeDegenerateFeature, "feature Nuclei_Area has zero variance in control group")
//	return errors.Wrap(repoErr, errors.ErrCodeDatabaseError, "failed to persist compound scores")
type AppError struct {
	// Code is the typed error code that uniquely identifies the failure
	// category.
	Code ErrorCode

	// Message is the primary human-readable description of the error,
	// suitable for inclusion in API responses returned to callers.
	Message string

	// Detail carries supplementary context (feature names, population
	// identifiers, parameter values) that aids debugging without leaking
	// internals to end users.
	Detail string

	// Cause is the underlying error that triggered this AppError, enabling
	// errors.Is / errors.As traversal of the full error chain.
	Cause error

	// Stack contains the formatted call-stack captured at the point of
	// error creation. It is intentionally not included in Error() output;
	// structured logging middleware reads the field directly.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>", detail omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer (returns nil).
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// New constructs a fresh AppError with the given code and message.
// A call-stack snapshot is captured automatically.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf constructs a fresh AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps an existing error.
// If err is nil, Wrap returns nil so it can be used inline:
//
//	return errors.Wrap(repo.Save(ctx, rec), errors.ErrCodeDatabaseError, "save failed")
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// IsCode reports whether any error in err's chain is an *AppError with the
// given code. It is the idiomatic way to check domain-specific failure
// modes:
//
//	if errors.IsCode(err, errors.ErrCodeNoClustersFound) { ... }
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsDegenerate reports whether any error in err's chain carries one of the
// degenerate-input codes (zero-variance feature, insufficient samples,
// all-noise clustering, empty retained-cluster set, missing control
// clusters). The screening orchestrator uses this to exclude a compound
// from the ranking with a recorded reason instead of failing the run.
func IsDegenerate(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && IsDegenerateInput(ae.Code) {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError found in err's
// chain. If no *AppError is present, ErrCodeInternal is returned.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrorCode("OK")
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// AsAppError returns the first *AppError in err's chain, or nil.
func AsAppError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// NotFound constructs an ErrCodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// InvalidParam constructs an ErrCodeBadRequest AppError.
func InvalidParam(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Validation constructs an ErrCodeValidation AppError. Configuration errors
// are reported through this factory and are fatal at startup.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs an ErrCodeInternal AppError.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}
