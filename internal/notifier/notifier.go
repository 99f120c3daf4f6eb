// Package notifier delivers "something changed under these roots" signals.
// Backends wrap fsnotify or poll the tree; both expose a resumable cursor.
package notifier

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/errors"
)

// Cursor bookmarks the change stream. It never decreases.
type Cursor uint64

// SinceNow subscribes without any history.
const SinceNow Cursor = 0

// Change is delivered once per coalescing window. Paths is a hint only.
type Change struct {
	Paths []string
}

// Notifier is a change-notification backend.
type Notifier interface {
	// Subscribe starts delivering changes under paths to onChange. onChange
	// runs on a goroutine owned by the notifier and must not block.
	Subscribe(paths []string, latency time.Duration, since Cursor, onChange func(Change)) (Cursor, error)
	// Unsubscribe stops delivery and waits for the delivery goroutine to exit.
	// It is safe to call when not subscribed.
	Unsubscribe() error
	// LatestCursor returns the current resumable cursor.
	LatestCursor() Cursor
	// Name identifies the backend in logs.
	Name() string
}

// New returns the backend named by kind (see config.Notifier*).
func New(kind string, pollInterval time.Duration, logger *logrus.Entry) (Notifier, error) {
	switch kind {
	case config.NotifierFSNotify:
		return NewFSNotify(logger), nil
	case config.NotifierPoll:
		return NewPoller(pollInterval, logger), nil
	case config.NotifierAuto, "":
		return &fallback{
			primary:   NewFSNotify(logger),
			secondary: NewPoller(pollInterval, logger),
			logger:    logger,
		}, nil
	default:
		return nil, errors.ConfigInvalid("unknown notifier " + kind)
	}
}

// cursorClock hands out wall-clock cursors that never go backwards.
type cursorClock struct {
	v atomic.Uint64
}

// seed raises the cursor to since, or to now for SinceNow.
func (c *cursorClock) seed(since Cursor) Cursor {
	if since == SinceNow {
		return c.advance()
	}
	return c.raise(uint64(since))
}

func (c *cursorClock) advance() Cursor {
	return c.raise(uint64(time.Now().UnixNano()))
}

func (c *cursorClock) raise(to uint64) Cursor {
	for {
		cur := c.v.Load()
		if to <= cur {
			return Cursor(cur)
		}
		if c.v.CompareAndSwap(cur, to) {
			return Cursor(to)
		}
	}
}

func (c *cursorClock) load() Cursor {
	return Cursor(c.v.Load())
}

// fallback tries the primary backend and switches to the secondary when the
// primary cannot subscribe (for example when the inotify watch limit is hit).
type fallback struct {
	primary   Notifier
	secondary Notifier
	active    atomic.Pointer[Notifier]
	logger    *logrus.Entry
}

func (f *fallback) Subscribe(paths []string, latency time.Duration, since Cursor, onChange func(Change)) (Cursor, error) {
	cursor, err := f.primary.Subscribe(paths, latency, since, onChange)
	if err == nil {
		f.active.Store(&f.primary)
		return cursor, nil
	}

	f.logger.WithError(err).Warnf("%s unavailable, falling back to %s", f.primary.Name(), f.secondary.Name())
	if latest := f.primary.LatestCursor(); latest > since {
		since = latest
	}
	cursor, err = f.secondary.Subscribe(paths, latency, since, onChange)
	if err != nil {
		return 0, err
	}
	f.active.Store(&f.secondary)
	return cursor, nil
}

func (f *fallback) Unsubscribe() error {
	active := f.active.Swap(nil)
	if active == nil {
		return nil
	}
	return (*active).Unsubscribe()
}

func (f *fallback) LatestCursor() Cursor {
	return max(f.primary.LatestCursor(), f.secondary.LatestCursor())
}

func (f *fallback) Name() string {
	if active := f.active.Load(); active != nil {
		return (*active).Name()
	}
	return config.NotifierAuto
}
