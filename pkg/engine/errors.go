package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: mirror timeouts, a package-manager lock held by another process.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a conflict with another process on shared state.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid profile, missing install script, script exit code.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the kind of failure (see the ErrCode constants).
	Code string `json:"code,omitempty"`

	// Section and Entry locate the entry that failed, if any.
	Section Section `json:"section,omitempty"`
	Entry   string  `json:"entry,omitempty"`

	// Operation is the backend operation running when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Entry != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (entry=%s/%s, operation=%s)", e.Code, msg, e.Section, e.Entry, e.Operation)
	case e.Entry != "":
		return fmt.Sprintf("[%s] %s (entry=%s/%s)", e.Code, msg, e.Section, e.Entry)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, msg)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// NewConflictError creates an error for shared state held by another process.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// NewConfigResolutionError reports a profile that could not be fetched, read or validated.
// It is always fatal for the run.
func NewConfigResolutionError(message string, err error) *EngineError {
	return NewPermanentError(message, err).WithCode(ErrCodeConfigResolution)
}

// NewInstallError reports a backend install that returned failure.
func NewInstallError(message string, err error) *EngineError {
	return NewPermanentError(message, err).WithCode(ErrCodeInstallFailed)
}

// NewTimeoutError reports a script killed at its wall-clock limit.
func NewTimeoutError(message string, err error) *EngineError {
	return NewPermanentError(message, err).WithCode(ErrCodeTimeout)
}

// WithEntry adds entry context to an error.
func (e *EngineError) WithEntry(entry Entry) *EngineError {
	e.Section = entry.Section
	e.Entry = entry.Name
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsEngineError returns err as an *EngineError, wrapping foreign errors as permanent install failures.
func AsEngineError(err error) *EngineError {
	if err == nil {
		return nil
	}
	var e *EngineError
	if errors.As(err, &e) {
		return e
	}
	return NewInstallError("install failed", err)
}

// IsRetryable returns true if the error can be retried.
// Transient and conflict errors are retryable.
func IsRetryable(err error) bool {
	var e *EngineError
	if !errors.As(err, &e) {
		return false
	}
	return e.Class == ErrorClassTransient || e.Class == ErrorClassConflict
}

// HasCode reports whether err is an EngineError carrying code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTimeout reports whether err is a script timeout.
func IsTimeout(err error) bool {
	return HasCode(err, ErrCodeTimeout)
}

// IsConfigResolution reports whether err is a fatal profile resolution error.
func IsConfigResolution(err error) bool {
	return HasCode(err, ErrCodeConfigResolution)
}

// Error codes.
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeConfigResolution     = "CONFIG_RESOLUTION"
	ErrCodeDependencyUnresolved = "DEPENDENCY_UNRESOLVED"
	ErrCodeInstallFailed        = "INSTALL_FAILED"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeVerificationFailed   = "VERIFICATION_FAILED"
	ErrCodeScriptNotFound       = "SCRIPT_NOT_FOUND"
	ErrCodeLockTimeout          = "LOCK_TIMEOUT"
	ErrCodeNoBackend            = "NO_BACKEND"
)
