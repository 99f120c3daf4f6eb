// Package dispatch runs converter commands over batches of new files.
package dispatch

import (
	"context"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/watchd/command"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/logging"
)

// Mode selects how files are handed to the command.
type Mode int

const (
	// ModeBatch runs one child with every file as a successive argument.
	ModeBatch Mode = iota
	// ModeFanOut runs one child per file, concurrently.
	ModeFanOut
)

func (m Mode) String() string {
	if m == ModeFanOut {
		return "fan-out"
	}
	return "batch"
}

// Job is one rule's share of a scan cycle.
type Job struct {
	Command string
	// Args are placed before the file arguments.
	Args    []string
	Files   []string
	Mode    Mode
	Keep    bool
	Timeout time.Duration
}

// Result reports per-file outcomes. Failures never abort a job.
type Result struct {
	Succeeded []string
	Failed    []string
	Removed   []string
	Errors    []error
}

// Options configures a Dispatcher.
type Options struct {
	Builder     *command.Builder
	MaxParallel int
	Logger      *logrus.Entry
	// Remove deletes an input file when Keep is false. Defaults to os.Remove.
	Remove func(path string) error
}

// Dispatcher executes jobs.
type Dispatcher struct {
	builder     *command.Builder
	maxParallel int
	logger      *logrus.Entry
	remove      func(string) error
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		builder:     opts.Builder,
		maxParallel: opts.MaxParallel,
		logger:      opts.Logger,
		remove:      opts.Remove,
	}
	if d.builder == nil {
		d.builder = command.NewBuilder()
	}
	if d.maxParallel <= 0 {
		d.maxParallel = runtime.NumCPU()
	}
	if d.logger == nil {
		d.logger = logging.NewLogger("dispatch")
	}
	if d.remove == nil {
		d.remove = os.Remove
	}
	return d
}

// Execute runs job and blocks until every child has exited. Child output is
// written to logging.GetWriter(ctx).
func (d *Dispatcher) Execute(ctx context.Context, job Job) Result {
	if len(job.Files) == 0 {
		return Result{}
	}

	logger := d.logger.WithFields(logrus.Fields{
		"command": job.Command,
		"mode":    job.Mode.String(),
		"files":   len(job.Files),
	})
	logger.Info("Dispatching files")

	var res Result
	if job.Mode == ModeFanOut {
		res = d.fanOut(ctx, job)
	} else {
		res = d.batch(ctx, job)
	}

	logger.WithField("succeeded", len(res.Succeeded)).
		WithField("failed", len(res.Failed)).
		Info("Dispatch finished")
	return res
}

func (d *Dispatcher) batch(ctx context.Context, job Job) Result {
	var res Result
	if err := d.run(ctx, job, job.Files); err != nil {
		res.Failed = append(res.Failed, job.Files...)
		res.Errors = append(res.Errors, err)
		return res
	}
	res.Succeeded = append(res.Succeeded, job.Files...)
	if !job.Keep {
		res.Removed = d.removeInputs(job.Files)
	}
	return res
}

func (d *Dispatcher) fanOut(ctx context.Context, job Job) Result {
	var (
		mu  sync.Mutex
		res Result
		g   errgroup.Group
	)
	g.SetLimit(d.maxParallel)

	for _, file := range job.Files {
		g.Go(func() error {
			err := d.run(ctx, job, []string{file})

			var removed []string
			if err == nil && !job.Keep {
				removed = d.removeInputs([]string{file})
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, file)
				res.Errors = append(res.Errors, err)
			} else {
				res.Succeeded = append(res.Succeeded, file)
				res.Removed = append(res.Removed, removed...)
			}
			// A failed child never cancels its siblings
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(res.Succeeded)
	slices.Sort(res.Failed)
	slices.Sort(res.Removed)
	return res
}

// run builds and runs one child over files. Failures are logged here.
func (d *Dispatcher) run(ctx context.Context, job Job, files []string) error {
	args := make([]string, 0, len(job.Args)+len(files))
	args = append(args, job.Args...)
	args = append(args, files...)

	cmd, err := d.builder.Build(job.Command, args...)
	if err != nil {
		d.logFailure(job, files, err)
		return err
	}
	cmd.WithTimeout(job.Timeout)

	out := logging.GetWriter(ctx)
	start := time.Now()
	if err := cmd.Run(ctx, out, out); err != nil {
		d.logFailure(job, files, err)
		return err
	}

	d.logger.WithField("command", job.Command).
		WithField("files", len(files)).
		WithField("duration", time.Since(start).Round(time.Millisecond)).
		Debug("Command succeeded")
	return nil
}

func (d *Dispatcher) logFailure(job Job, files []string, err error) {
	entry := d.logger.WithError(err).WithField("command", job.Command).WithField("code", errors.GetCode(err))
	for _, file := range files {
		entry.WithField("file", file).Warn("Dispatch failed")
	}
}

// removeInputs deletes each file independently; failures are logged.
func (d *Dispatcher) removeInputs(files []string) []string {
	var removed []string
	for _, file := range files {
		if err := d.remove(file); err != nil {
			d.logger.WithError(err).WithField("file", file).Warn("Failed to remove processed file")
			continue
		}
		removed = append(removed, file)
	}
	return removed
}
