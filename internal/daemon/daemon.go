// Package daemon wires the watchd components together and runs them.
package daemon

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/command"
	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/internal/backup"
	"github.com/grovetools/watchd/internal/daemon/coordinator"
	"github.com/grovetools/watchd/internal/daemon/pidfile"
	"github.com/grovetools/watchd/internal/daemon/server"
	"github.com/grovetools/watchd/internal/daemon/store"
	"github.com/grovetools/watchd/internal/dispatch"
	"github.com/grovetools/watchd/internal/notifier"
	"github.com/grovetools/watchd/internal/scanner"
	"github.com/grovetools/watchd/internal/tui"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/paths"
	"github.com/grovetools/watchd/pkg/protocol"
	"github.com/grovetools/watchd/util/pathutil"
	"github.com/grovetools/watchd/version"
)

// DefaultReadTimeout bounds how long a control client may stay silent.
const DefaultReadTimeout = 5 * time.Second

// Options overrides locations and collaborators chosen from the settings.
type Options struct {
	// SocketPath defaults to the settings value, then paths.SocketPath().
	SocketPath string
	// BackupPath defaults to the settings value, then paths.BackupPath().
	BackupPath string
	// PidFile enables the single-instance lock when set.
	PidFile string
	// SettingsFile is watched for logging changes when set.
	SettingsFile string
	// Notifier replaces the backend named in the settings.
	Notifier notifier.Notifier
	Logger   *logrus.Entry
}

// Daemon owns one coordinator and its control socket.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *logrus.Entry

	coord  *coordinator.Coordinator
	store  *store.Store
	server *server.Server
	backup *backup.JSONManager

	socketPath string
}

// New builds every component from cfg. Nothing is started.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("watchd")
	}

	filter, err := scanner.NewFilter(cfg.Extensions, cfg.Ignore)
	if err != nil {
		return nil, err
	}

	n := opts.Notifier
	if n == nil {
		n, err = notifier.New(cfg.Notifier, cfg.PollIntervalDuration(), logging.NewLogger("notifier"))
		if err != nil {
			return nil, err
		}
	}

	backupPath := firstNonEmpty(opts.BackupPath, cfg.BackupFile, paths.BackupPath())
	mgr, err := backup.NewJSONManager(backupPath)
	if err != nil {
		return nil, err
	}

	socketPath, err := pathutil.Expand(firstNonEmpty(opts.SocketPath, cfg.Socket, paths.SocketPath()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid socket path")
	}

	disp := dispatch.New(dispatch.Options{
		Builder:     command.NewBuilder().WithDefaultTimeout(cfg.CommandTimeoutDuration()),
		MaxParallel: cfg.MaxParallel,
		Logger:      logging.NewLogger("dispatch"),
	})

	st := store.New()
	d := &Daemon{
		cfg:        cfg,
		opts:       opts,
		logger:     opts.Logger,
		store:      st,
		backup:     mgr,
		socketPath: socketPath,
	}
	d.coord = coordinator.New(coordinator.Options{
		Rules:           cfg.FileTypes,
		Filter:          filter,
		Latency:         cfg.LatencyDuration(),
		ProcessExisting: cfg.ProcessExisting,
		Timeout:         cfg.RuleTimeout,
		Store:           st,
		Logger:          logging.NewLogger("coordinator"),
	}, n, mgr, disp)
	d.server = server.New(d, server.Options{
		ReadTimeout: DefaultReadTimeout,
		OnQuit:      func() { d.logger.Info("Quit acknowledged, stopping") },
		Logger:      logging.NewLogger("server"),
	})
	return d, nil
}

// SocketPath returns the control socket location.
func (d *Daemon) SocketPath() string { return d.socketPath }

// BackupPath returns the backup file location.
func (d *Daemon) BackupPath() string { return d.backup.Path() }

// NewFiles returns the files detected since start.
func (d *Daemon) NewFiles() []string { return d.coord.NewFiles() }

// Roots returns the tracked roots.
func (d *Daemon) Roots() []string { return d.coord.Roots() }

// Store returns the status store.
func (d *Daemon) Store() *store.Store { return d.store }

// Status assembles the status document served to clients.
func (d *Daemon) Status() protocol.Status {
	st := d.store.Get()
	roots := make([]protocol.RootStatus, 0, len(st.Roots))
	for _, root := range d.coord.Roots() {
		roots = append(roots, protocol.RootStatus{Path: root, Files: st.Roots[root]})
	}
	return protocol.Status{
		PID:        os.Getpid(),
		Version:    version.GetInfo().Version,
		State:      d.coord.State().String(),
		Notifier:   st.Notifier,
		Cursor:     d.coord.Cursor(),
		StartedAt:  st.StartedAt,
		LastScan:   st.LastScan,
		Scans:      st.Scans,
		NewFiles:   len(d.coord.NewFiles()),
		Dispatched: st.Dispatched,
		Failed:     st.Failed,
		Roots:      roots,
	}
}

// Run tracks roots, starts watching and serves the control socket until a
// Quit request or ctx is cancelled. The backup is saved before it returns.
func (d *Daemon) Run(ctx context.Context, roots []string) error {
	release, err := d.lock()
	if err != nil {
		return err
	}
	defer release()

	if err := d.addRoots(roots); err != nil {
		return err
	}
	if err := d.server.Listen(d.socketPath); err != nil {
		return err
	}
	// Children keep running through a signal so in-flight work completes.
	if err := d.coord.Start(context.WithoutCancel(ctx)); err != nil {
		d.server.Shutdown()
		return err
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	d.watchSettings(watchCtx)

	d.logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"socket": d.socketPath,
		"roots":  len(d.coord.Roots()),
	}).Info("Daemon started")

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.server.Serve() }()

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("Received stop signal")
	case runErr = <-serveErr:
	}

	d.server.Shutdown()
	if err := d.coord.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	d.logger.Info("Daemon stopped")
	return runErr
}

// RunInteractive runs the same core in the foreground without a control
// socket. The terminal view decides when to quit.
func (d *Daemon) RunInteractive(ctx context.Context, roots []string, opts ...tui.Option) error {
	release, err := d.lock()
	if err != nil {
		return err
	}
	defer release()

	if err := d.addRoots(roots); err != nil {
		return err
	}
	if err := d.coord.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	viewErr := tui.Run(ctx, d, opts...)
	if err := d.coord.Stop(); err != nil && viewErr == nil {
		viewErr = err
	}
	return viewErr
}

// Stop stops the coordinator and the control socket. Run returns afterwards.
func (d *Daemon) Stop() error {
	d.server.Shutdown()
	return d.coord.Stop()
}

// addRoots tracks command-line roots, then configured roots, then roots
// recorded in the backup.
func (d *Daemon) addRoots(cliRoots []string) error {
	for _, root := range cliRoots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return errors.New(errors.ErrCodeInvalidInput, root+" is not an existing directory").
				WithDetail("root", root)
		}
	}
	if err := d.coord.AddFolders(cliRoots); err != nil {
		return err
	}
	if err := d.coord.AddFolders(d.cfg.Roots); err != nil {
		return err
	}
	if d.cfg.ShouldResumeRoots() {
		resumed, err := d.coord.ResumeRoots()
		if err != nil {
			return err
		}
		if len(resumed) > 0 {
			d.logger.WithField("roots", resumed).Info("Resumed roots from backup")
		}
	}
	if len(d.coord.Roots()) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "no directories to watch")
	}
	return nil
}

func (d *Daemon) lock() (func(), error) {
	if d.opts.PidFile == "" {
		return func() {}, nil
	}
	if err := pidfile.Acquire(d.opts.PidFile); err != nil {
		return nil, err
	}
	return func() {
		if err := pidfile.Release(d.opts.PidFile); err != nil {
			d.logger.WithError(err).Error("Failed to release pid file")
		}
	}, nil
}

func firstNonEmpty(values ...string) string {
	if i := slices.IndexFunc(values, func(v string) bool { return v != "" }); i >= 0 {
		return values[i]
	}
	return ""
}
