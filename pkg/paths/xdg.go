// Package paths resolves the default on-disk locations used by watchd.
//
// Resolution order:
// 1. WATCHD_HOME (portable root) → $WATCHD_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/watchd
// 3. Platform defaults → ~/.config/watchd, ~/.local/state/watchd
package paths

import (
	"os"
	"path/filepath"
)

const appName = "watchd"

func home(sub string) string {
	if root := os.Getenv("WATCHD_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	return ""
}

func xdgBase(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	parts := append([]string{homeDir}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

// ConfigDir returns the directory searched for watchd.{yml,yaml,toml,json}.
func ConfigDir() string {
	if dir := home("config"); dir != "" {
		return dir
	}
	return xdgBase("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the directory for the backup file, pid file and logs.
func StateDir() string {
	if dir := home("state"); dir != "" {
		return dir
	}
	return xdgBase("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the control socket.
// Uses XDG_RUNTIME_DIR when available, falls back to StateDir.
func RuntimeDir() string {
	if dir := home("run"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the default control socket path.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "watchd.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "watchd.pid")
}

// BackupPath returns the default persisted-state file.
func BackupPath() string {
	return filepath.Join(StateDir(), "backup.json")
}

// LogDir returns the directory holding rotated daemon logs.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// LogFilePath returns the daemon's log file.
func LogFilePath() string {
	return filepath.Join(LogDir(), "watchd.log")
}

// EnsureDirs creates the watchd directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
