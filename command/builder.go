package command

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/pkg/process"
)

const (
	// DefaultTimeout is the default execution timeout of one child
	DefaultTimeout = 30 * time.Minute

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 24 * time.Hour

	// waitDelay bounds how long Run waits for output pipes after the child is killed
	waitDelay = 5 * time.Second
)

// Builder validates and prepares argv-style commands. Nothing is ever passed
// through a shell.
type Builder struct {
	defaultTimeout time.Duration
	executor       Executor
}

// NewBuilder creates a Builder with a RealExecutor
func NewBuilder() *Builder {
	return NewBuilderWithExecutor(&RealExecutor{})
}

// NewBuilderWithExecutor creates a Builder with a custom Executor
func NewBuilderWithExecutor(exec Executor) *Builder {
	return &Builder{
		defaultTimeout: DefaultTimeout,
		executor:       exec,
	}
}

// WithDefaultTimeout sets the timeout applied to commands built afterwards.
// Zero disables the timeout.
func (b *Builder) WithDefaultTimeout(timeout time.Duration) *Builder {
	b.defaultTimeout = clampTimeout(timeout)
	return b
}

// Command is a validated command ready to run.
type Command struct {
	name     string
	path     string
	args     []string
	timeout  time.Duration
	executor Executor
}

// Build resolves name to an executable and validates args.
func (b *Builder) Build(name string, args ...string) (*Command, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "command name cannot be empty")
	}
	for i, arg := range args {
		if err := validateArg(arg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid argument %d", i)).
				WithDetail("command", name)
		}
	}

	path, err := b.executor.LookPath(name)
	if err != nil {
		return nil, errors.CommandNotFound(name, err)
	}

	return &Command{
		name:     name,
		path:     path,
		args:     append([]string(nil), args...),
		timeout:  b.defaultTimeout,
		executor: b.executor,
	}, nil
}

// validateArg rejects arguments the kernel cannot pass through execve.
func validateArg(arg string) error {
	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("argument contains a NUL byte")
	}
	return nil
}

func clampTimeout(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return 0
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// WithTimeout sets a custom timeout for the command. Zero disables it.
func (c *Command) WithTimeout(timeout time.Duration) *Command {
	c.timeout = clampTimeout(timeout)
	return c
}

// Timeout returns the effective timeout.
func (c *Command) Timeout() time.Duration {
	return c.timeout
}

// Path returns the resolved executable.
func (c *Command) Path() string {
	return c.path
}

// Args returns the argument vector without the executable.
func (c *Command) Args() []string {
	return c.args
}

// String renders the command for logs.
func (c *Command) String() string {
	return strings.Join(append([]string{c.name}, c.args...), " ")
}

// Run executes the command and waits for it. Output goes to stdout and stderr,
// which may be nil. A timeout is reported as COMMAND_TIMEOUT and a failed or
// non-zero exit as DISPATCH_FAILED.
func (c *Command) Run(ctx context.Context, stdout, stderr io.Writer) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := c.executor.CommandContext(ctx, c.path, c.args...) //nolint:gosec // argv vector, never a shell
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// The child leads its own process group so a timeout also kills whatever
	// it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return process.KillGroup(cmd.Process.Pid) }
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.CommandTimeout(c.name, c.timeout)
	}
	return errors.DispatchFailed(c.name, err)
}
