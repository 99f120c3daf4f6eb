package command

import (
	"context"
	"os/exec"
)

// Executor creates exec.Cmd instances and resolves executables. Tests inject
// their own implementation to control PATH lookup and spawning.
type Executor interface {
	// CommandContext creates a new context-aware exec.Cmd instance.
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd

	// LookPath resolves an executable name to a path.
	LookPath(file string) (string, error)
}

// RealExecutor is the production implementation of Executor over os/exec.
type RealExecutor struct{}

// CommandContext creates a standard context-aware exec.Cmd.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// LookPath searches PATH unless file contains a separator.
func (e *RealExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
