package errors

import (
	stderrors "errors"
	"fmt"
	"os/exec"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *WatchError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *WatchError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ScanFailed reports that enumerating a scope of a watched root failed.
func ScanFailed(scope string, err error) *WatchError {
	return Wrap(err, ErrCodeScanFailed, fmt.Sprintf("scan of %s failed", scope)).
		WithDetail("scope", scope)
}

// InvalidScanScope reports a subdirectory scan outside the index root.
func InvalidScanScope(root, dir string) *WatchError {
	return New(ErrCodeInvalidScanScope, fmt.Sprintf("%s is not inside root %s", dir, root)).
		WithDetail("root", root).
		WithDetail("dir", dir)
}

// BackupCorrupt reports a backup file that exists but cannot be used.
func BackupCorrupt(path string, err error) *WatchError {
	return Wrap(err, ErrCodeBackupCorrupt, fmt.Sprintf("backup file %s is corrupt", path)).
		WithDetail("path", path)
}

// BackupWriteFailed reports a failed state save.
func BackupWriteFailed(path string, err error) *WatchError {
	return Wrap(err, ErrCodeBackupWriteFailed, fmt.Sprintf("failed to write backup %s", path)).
		WithDetail("path", path)
}

// CommandNotFound creates an error for a converter command missing from PATH
func CommandNotFound(cmd string, err error) *WatchError {
	return Wrap(err, ErrCodeCommandNotFound, fmt.Sprintf("command not found: %s", cmd)).
		WithDetail("command", cmd)
}

// CommandTimeout creates an error for a child that outlived its timeout
func CommandTimeout(cmd string, timeout time.Duration) *WatchError {
	return New(ErrCodeCommandTimeout, fmt.Sprintf("command %s timed out after %s", cmd, timeout)).
		WithDetail("command", cmd).
		WithDetail("timeout", timeout.String())
}

// DispatchFailed creates a command execution failure error
func DispatchFailed(cmd string, err error) *WatchError {
	watchErr := Wrap(err, ErrCodeDispatchFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		watchErr = watchErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return watchErr
}

// NotifierFailed reports a failure to establish or maintain a subscription.
func NotifierFailed(backend string, err error) *WatchError {
	return Wrap(err, ErrCodeNotifierFailed, fmt.Sprintf("%s notifier failed", backend)).
		WithDetail("backend", backend)
}

// Protocol reports a malformed control-plane exchange.
func Protocol(reason string, err error) *WatchError {
	if err == nil {
		return New(ErrCodeProtocol, reason)
	}
	return Wrap(err, ErrCodeProtocol, reason)
}

// SocketBindFailed reports that the control socket could not be bound.
func SocketBindFailed(path string, err error) *WatchError {
	return Wrap(err, ErrCodeSocketBindFailed, fmt.Sprintf("failed to listen on %s", path)).
		WithDetail("socket", path)
}

// DaemonNotRunning is returned by clients when no daemon answers on the socket.
func DaemonNotRunning(socket string) *WatchError {
	return New(ErrCodeDaemonNotRunning, "watchd daemon is not running").
		WithDetail("socket", socket)
}

// DaemonAlreadyRunning is returned when the pid lock is held by a live process.
func DaemonAlreadyRunning(pid int) *WatchError {
	return New(ErrCodeDaemonAlreadyRunning, fmt.Sprintf("watchd is already running (PID %d)", pid)).
		WithDetail("pid", pid)
}
