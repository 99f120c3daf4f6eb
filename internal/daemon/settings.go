package daemon

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/logging"
)

// SettingsWatcher reloads the logging section when the settings file changes.
// Rules, roots and extensions are fixed for the daemon's lifetime; changes to
// them are reported and take effect on restart.
type SettingsWatcher struct {
	path     string
	current  *config.Config
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(*config.Config)

	mu    sync.Mutex
	timer *time.Timer

	reloadMu sync.Mutex
}

// NewSettingsWatcher creates a watcher for path. onReload, if set, runs after
// every successful reload.
func NewSettingsWatcher(path string, current *config.Config, debounce time.Duration, onReload func(*config.Config)) *SettingsWatcher {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &SettingsWatcher{
		path:     filepath.Clean(path),
		current:  current,
		debounce: debounce,
		logger:   logging.NewLogger("settings-watcher"),
		onReload: onReload,
	}
}

// Start begins watching. It blocks until ctx is cancelled.
func (w *SettingsWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	defer w.cancelPending()

	// Editors replace files by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// handleChange schedules a reload once the file has been quiet for the
// debounce window, so the last write of a burst is the one applied.
func (w *SettingsWatcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *SettingsWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *SettingsWatcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	next, err := config.Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid settings change")
		return
	}

	if err := logging.ConfigureFromSettings(next, true); err != nil {
		w.logger.WithError(err).Warn("Failed to apply logging settings")
		return
	}
	w.logger.WithField("file", filepath.Base(w.path)).Info("Settings reloaded")

	if restartRequired(w.current, next) {
		w.logger.Warn("Watch settings changed; restart watchd to apply them")
	}
	w.current = next

	if w.onReload != nil {
		w.onReload(next)
	}
}

// Current returns the settings applied by the last reload.
func (w *SettingsWatcher) Current() *config.Config {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	return w.current
}

// restartRequired reports whether anything other than logging changed.
func restartRequired(prev, next *config.Config) bool {
	if prev == nil {
		return false
	}
	a, b := *prev, *next
	a.Sections, b.Sections = nil, nil
	return !reflect.DeepEqual(a, b)
}

// watchSettings runs a SettingsWatcher for the daemon's settings file.
func (d *Daemon) watchSettings(ctx context.Context) {
	if d.opts.SettingsFile == "" {
		return
	}
	w := NewSettingsWatcher(d.opts.SettingsFile, d.cfg, 0, nil)
	go func() {
		if err := w.Start(ctx); err != nil {
			d.logger.WithError(err).Warn("Settings file is not watched")
		}
	}()
}
