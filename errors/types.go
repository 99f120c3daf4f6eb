package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Directory index errors
	ErrCodeScanFailed       ErrorCode = "SCAN_FAILED"
	ErrCodeInvalidScanScope ErrorCode = "INVALID_SCAN_SCOPE"

	// Persistence errors
	ErrCodeBackupCorrupt     ErrorCode = "BACKUP_CORRUPT"
	ErrCodeBackupWriteFailed ErrorCode = "BACKUP_WRITE_FAILED"

	// Command execution errors
	ErrCodeDispatchFailed  ErrorCode = "DISPATCH_FAILED"
	ErrCodeCommandTimeout  ErrorCode = "COMMAND_TIMEOUT"
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"

	// Notification and control plane errors
	ErrCodeNotifierFailed       ErrorCode = "NOTIFIER_FAILED"
	ErrCodeProtocol             ErrorCode = "PROTOCOL_ERROR"
	ErrCodeSocketBindFailed     ErrorCode = "SOCKET_BIND_FAILED"
	ErrCodeDaemonNotRunning     ErrorCode = "DAEMON_NOT_RUNNING"
	ErrCodeDaemonAlreadyRunning ErrorCode = "DAEMON_ALREADY_RUNNING"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// WatchError represents a structured error with context
type WatchError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *WatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *WatchError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *WatchError) WithDetail(key string, value interface{}) *WatchError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *WatchError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new WatchError
func New(code ErrorCode, message string) *WatchError {
	return &WatchError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a WatchError
func Wrap(err error, code ErrorCode, message string) *WatchError {
	return &WatchError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any error in err's chain is a WatchError with the given code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the code of the outermost WatchError in err's chain.
func GetCode(err error) ErrorCode {
	var watchErr *WatchError
	if stderrors.As(err, &watchErr) {
		return watchErr.Code
	}
	return ""
}
