// Package errors provides structured error types for the elrepack pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across all pipeline stages
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages, including remediation guidance
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes map directly to the pipeline's failure classes:
//   - ENVIRONMENT: the host is missing a required tool or is unsupported
//   - PROVISION_FAILED: the pinned toolchain could not be installed
//   - VERSION_DETECTION: embedded native-module versions could not be read
//   - REBUILD_FAILED: native addon compilation failed
//   - ARCHIVE_ERROR: archive extraction or packing failed
//
// # Usage
//
//	err := errors.New(errors.ErrCodeDetection, "cannot determine version of %s", name)
//	if errors.Is(err, errors.ErrCodeDetection) {
//	    // Handle detection error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeArchive, origErr, "extract %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Environment errors: reported before any mutation.
	ErrCodeEnvironment Code = "ENVIRONMENT"
	ErrCodeUnsupported Code = "UNSUPPORTED"

	// Toolchain provisioning errors (after the fallback attempt).
	ErrCodeProvision Code = "PROVISION_FAILED"

	// Native module version detection errors: never guessed.
	ErrCodeDetection Code = "VERSION_DETECTION"

	// Native rebuild errors.
	ErrCodeBuild Code = "REBUILD_FAILED"

	// Archive extraction/packing errors.
	ErrCodeArchive Code = "ARCHIVE_ERROR"

	// Download errors.
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeChecksum Code = "CHECKSUM_MISMATCH"

	// Input validation errors.
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidModule Code = "INVALID_MODULE"

	// Unexpected internal errors.
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
