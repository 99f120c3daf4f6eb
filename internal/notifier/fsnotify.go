package notifier

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/errors"
)

// FSNotify watches every directory below the subscribed roots with fsnotify
// and coalesces raw events over the subscription latency.
type FSNotify struct {
	logger *logrus.Entry
	clock  cursorClock

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotify creates an unsubscribed fsnotify backend.
func NewFSNotify(logger *logrus.Entry) *FSNotify {
	return &FSNotify{logger: logger}
}

func (n *FSNotify) Name() string { return "fsnotify" }

func (n *FSNotify) LatestCursor() Cursor { return n.clock.load() }

func (n *FSNotify) Subscribe(paths []string, latency time.Duration, since Cursor, onChange func(Change)) (Cursor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.watcher != nil {
		return 0, errors.NotifierFailed(n.Name(), stderrors.New("already subscribed"))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, errors.NotifierFailed(n.Name(), err)
	}
	for _, root := range paths {
		if err := addRecursive(watcher, root); err != nil {
			_ = watcher.Close()
			return 0, errors.NotifierFailed(n.Name(), err).WithDetail("root", root)
		}
	}

	cursor := n.clock.seed(since)
	n.watcher = watcher
	n.done = make(chan struct{})
	n.wg.Add(1)
	go n.run(watcher, n.done, latency, onChange)

	n.logger.WithField("roots", len(paths)).WithField("cursor", uint64(cursor)).Debug("fsnotify subscription started")
	return cursor, nil
}

func (n *FSNotify) Unsubscribe() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.watcher == nil {
		return nil
	}
	close(n.done)
	n.wg.Wait()
	err := n.watcher.Close()
	n.watcher = nil
	n.done = nil
	return err
}

// run is the delivery loop. The first raw event of a window arms the timer;
// everything arriving before it fires is folded into the same Change.
func (n *FSNotify) run(watcher *fsnotify.Watcher, done <-chan struct{}, latency time.Duration, onChange func(Change)) {
	defer n.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(latency)
			fire = timer.C
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// fsnotify is not recursive: new directories need their own watches
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						n.logger.WithError(err).WithField("dir", event.Name).Warn("Failed to watch new directory")
					}
				}
			}
			pending[event.Name] = struct{}{}
			arm()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			n.logger.WithError(err).Warn("fsnotify error")
			// Lost events still mean something changed
			if stderrors.Is(err, fsnotify.ErrEventOverflow) {
				arm()
			}

		case <-fire:
			timer, fire = nil, nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			n.clock.advance()
			onChange(Change{Paths: paths})

		case <-done:
			return
		}
	}
}

// addRecursive watches dir and every directory below it. Directories that
// vanish during the walk are skipped.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && path != dir {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && path != dir {
				return nil
			}
			return err
		}
		return nil
	})
}
