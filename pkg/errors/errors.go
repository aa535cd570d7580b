// Package errors provides structured error types for rezls.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI, the HTTP surface and the workspace
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes follow the failure taxonomy of the language server:
//   - IO: a path could not be read or written (never fatal to a scan)
//   - PARSE: malformed manifest, version or requirement text
//   - VALIDATION: semantic problems found while validating a manifest
//   - CONFLICT / CYCLE: the resolver could not produce a consistent selection
//   - TIMEOUT / CANCELED: a bounded operation did not finish
//   - INTERNAL: invariant violations (recovered per request)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid package name: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "read manifest %s", path)
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
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"
	ErrCodeInvalidURI     Code = "INVALID_URI"

	// Manifest and model errors
	ErrCodeIO         Code = "IO"
	ErrCodeParse      Code = "PARSE"
	ErrCodeValidation Code = "VALIDATION"

	// Resolution errors
	ErrCodeConflict Code = "CONFLICT"
	ErrCodeCycle    Code = "CYCLE"
	ErrCodeTimeout  Code = "TIMEOUT"
	ErrCodeCanceled Code = "CANCELED"

	// Resource not found errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodePackageNotFound  Code = "PACKAGE_NOT_FOUND"
	ErrCodeDocumentNotFound Code = "DOCUMENT_NOT_FOUND"

	// Configuration errors
	ErrCodeConfig Code = "CONFIG"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
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

// Coder is implemented by typed errors of other packages (parse errors,
// conflicts) so they take part in code lookups without being an *Error.
type Coder interface {
	Code() Code
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or a [Coder] with a
// matching code.
func Is(err error, code Code) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Retriable reports whether the failure is transient: the same request may
// succeed when repeated (timeouts, cancellations by a newer request).
func Retriable(err error) bool {
	switch GetCode(err) {
	case ErrCodeTimeout, ErrCodeCanceled:
		return true
	}
	return false
}
