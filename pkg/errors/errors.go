// Package errors provides structured error types for clustermap.
//
// Every failure that crosses a package boundary carries a machine-readable
// [Code]. The pipeline uses the code to decide whether a failure aborts the
// request or degrades it:
//
//   - INVALID_*: parameter validation, raised before any file is read
//   - CLUSTERING_FAILED: the linkage could not be computed; recoverable
//   - DEGENERATE_DIMENSION: an axis has fewer than two items; recoverable
//   - IO_FAILURE, FILE_NOT_FOUND: the matrix could not be read or the
//     artifact could not be written; fatal
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidParameter, "top_percent must be numeric, got %q", v)
//	if errors.IsRecoverable(err) {
//	    // keep the original order for this axis
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidParameter Code = "INVALID_PARAMETER"
	ErrCodeMissingParameter Code = "MISSING_PARAMETER"
	ErrCodeInvalidPath      Code = "INVALID_PATH"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"

	// Pipeline errors
	ErrCodeClusteringFailed    Code = "CLUSTERING_FAILED"
	ErrCodeDegenerateDimension Code = "DEGENERATE_DIMENSION"
	ErrCodeInvalidMatrix       Code = "INVALID_MATRIX"

	// I/O errors
	ErrCodeIO           Code = "IO_FAILURE"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsRecoverable reports whether the pipeline may continue after err by
// keeping the original order of the affected axis.
func IsRecoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeClusteringFailed, ErrCodeDegenerateDimension:
		return true
	}
	return false
}

// IsValidation reports whether err is a parameter or input validation failure.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidParameter, ErrCodeMissingParameter, ErrCodeInvalidPath, ErrCodeInvalidConfig:
		return true
	}
	return false
}
