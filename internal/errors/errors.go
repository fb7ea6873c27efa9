// Package errors provides structured error types for the task runner.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
)

// Error codes for runner operations.
const (
	// Config errors
	CodeConfigMissingField = "CONFIG_001" // Missing required field
	CodeConfigInvalidValue = "CONFIG_002" // Invalid value type

	// Run errors
	CodeLaunchFailed    = "LAUNCH_001" // Executable could not be spawned
	CodeSetupFailed     = "SETUP_001"  // Provisioning command exited non-zero
	CodeExecutionFailed = "EXEC_001"   // Main command exited non-zero
	CodeCancelled       = "CANCEL_001" // Run cancelled by the caller

	// Task errors
	CodeTaskActive  = "TASK_001" // A task is already running
	CodeTaskInvalid = "TASK_002" // Request failed validation

	// Credential errors
	CodeCredentialInvalid = "CRED_001" // Malformed credential file or provider

	// IO errors
	CodeIOFileNotFound = "IO_001" // File not found
	CodeIOPermission   = "IO_002" // Permission denied
	CodeIODiskFull     = "IO_003" // Disk full
	CodeIOReadError    = "IO_004" // Read error
	CodeIOWriteError   = "IO_005" // Write error
)

// RunError is the structured error type for runner operations.
type RunError struct {
	Code    string         `json:"code"`              // Error code (e.g., "SETUP_001")
	Message string         `json:"message"`           // Human-readable message
	Details map[string]any `json:"details,omitempty"` // Context (device, exit_code, output)
	Cause   error          `json:"-"`                 // Wrapped error (not serialized)
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *RunError) WithDetail(key string, value any) *RunError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *RunError) MarshalJSON() ([]byte, error) {
	type alias RunError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new RunError.
func New(code, message string) *RunError {
	return &RunError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new RunError with formatted message.
func Newf(code, format string, args ...any) *RunError {
	return &RunError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a RunError.
func Wrap(code, message string, err error) *RunError {
	return &RunError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// --- Config Errors ---

// ConfigMissingField creates an error for missing config field.
func ConfigMissingField(field string) *RunError {
	return Newf(CodeConfigMissingField, "missing required config field: %s", field).
		WithDetail("field", field)
}

// ConfigInvalidValue creates an error for invalid config value.
func ConfigInvalidValue(field string, value any, reason string) *RunError {
	return Newf(CodeConfigInvalidValue, "invalid config value for %s: %s", field, reason).
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

// --- Run Errors ---

// LaunchFailed creates an error for a process that could not be spawned.
func LaunchFailed(path string, err error) *RunError {
	return Wrap(CodeLaunchFailed, "failed to launch "+path, err).
		WithDetail("path", path)
}

// SetupFailed creates an error for a provisioning command that ran but failed.
// The captured combined output is kept verbatim.
func SetupFailed(device string, exitCode int, output string) *RunError {
	return Newf(CodeSetupFailed, "setup failed on device %s (exit code %d)", device, exitCode).
		WithDetail("device", device).
		WithDetail("exit_code", exitCode).
		WithDetail("output", output)
}

// ExecutionFailed creates an error for a main command that exited non-zero.
func ExecutionFailed(exitCode int, output string) *RunError {
	return Newf(CodeExecutionFailed, "task exited with code %d", exitCode).
		WithDetail("exit_code", exitCode).
		WithDetail("output", output)
}

// Cancelled creates the error reported for a caller-initiated stop.
func Cancelled() *RunError {
	return New(CodeCancelled, "cancelled")
}

// --- Task Errors ---

// TaskActive creates an error for a start request while a run is in progress.
func TaskActive(state string) *RunError {
	return Newf(CodeTaskActive, "a task is already active (state %s)", state).
		WithDetail("state", state)
}

// TaskInvalid creates an error for a request that failed validation.
func TaskInvalid(err error) *RunError {
	return Wrap(CodeTaskInvalid, "invalid task request", err)
}

// --- Credential Errors ---

// CredentialInvalid creates an error for a malformed credential file or key.
func CredentialInvalid(path, reason string) *RunError {
	return Newf(CodeCredentialInvalid, "invalid credentials in %s: %s", path, reason).
		WithDetail("path", path).
		WithDetail("reason", reason)
}

// --- IO Errors ---

// IOFileNotFound creates an error for missing file.
func IOFileNotFound(path string) *RunError {
	return Newf(CodeIOFileNotFound, "file not found: %s", path).
		WithDetail("path", path)
}

// IOPermissionDenied creates an error for permission issues.
func IOPermissionDenied(path string, err error) *RunError {
	return Wrap(CodeIOPermission, "permission denied", err).
		WithDetail("path", path)
}

// IODiskFull creates an error for disk space issues.
func IODiskFull(path string, err error) *RunError {
	return Wrap(CodeIODiskFull, "disk full", err).
		WithDetail("path", path)
}

// IOReadError creates an error for read failures.
func IOReadError(path string, err error) *RunError {
	return Wrap(CodeIOReadError, "failed to read file", err).
		WithDetail("path", path)
}

// IOWriteError creates an error for write failures.
func IOWriteError(path string, err error) *RunError {
	return Wrap(CodeIOWriteError, "failed to write file", err).
		WithDetail("path", path)
}

// ReadFailed classifies a failed read of path by its cause.
func ReadFailed(path string, err error) *RunError {
	if errors.Is(err, fs.ErrNotExist) {
		return IOFileNotFound(path)
	}
	if errors.Is(err, fs.ErrPermission) {
		return IOPermissionDenied(path, err)
	}
	return IOReadError(path, err)
}

// WriteFailed classifies a failed write of path by its cause.
func WriteFailed(path string, err error) *RunError {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return IOPermissionDenied(path, err)
	case errors.Is(err, syscall.ENOSPC):
		return IODiskFull(path, err)
	}
	return IOWriteError(path, err)
}

// HasCode checks if an error is a RunError with the given code.
// It handles wrapped errors by unwrapping to find a RunError.
func HasCode(err error, code string) bool {
	var rerr *RunError
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	return false
}

// Code returns the error code if err is a RunError, empty string otherwise.
// It handles wrapped errors by unwrapping to find a RunError.
func Code(err error) string {
	var rerr *RunError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}

// Diagnostic returns the text a caller should show for err: the captured
// process output when there is any, the error message otherwise.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var rerr *RunError
	if errors.As(err, &rerr) {
		if out, ok := rerr.Details["output"].(string); ok && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		if rerr.Cause != nil {
			return rerr.Cause.Error()
		}
		return rerr.Message
	}
	return err.Error()
}
