package notifier

import (
	stderrors "errors"
	"hash/fnv"
	"io/fs"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/errors"
)

// DefaultPollInterval is used when a Poller is created with a zero interval.
const DefaultPollInterval = 2 * time.Second

// Poller detects changes by fingerprinting each root on a fixed interval.
// It works on filesystems where fsnotify cannot (network mounts, FUSE).
type Poller struct {
	interval time.Duration
	logger   *logrus.Entry
	clock    cursorClock

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewPoller creates an unsubscribed poll backend.
func NewPoller(interval time.Duration, logger *logrus.Entry) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, logger: logger}
}

func (p *Poller) Name() string { return "poll" }

func (p *Poller) LatestCursor() Cursor { return p.clock.load() }

// Subscribe fingerprints every root once and starts polling. The latency is
// folded into the poll interval.
func (p *Poller) Subscribe(paths []string, latency time.Duration, since Cursor, onChange func(Change)) (Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return 0, errors.NotifierFailed(p.Name(), stderrors.New("already subscribed"))
	}

	roots := append([]string(nil), paths...)
	prints := make(map[string]uint64, len(roots))
	for _, root := range roots {
		fp, err := fingerprint(root)
		if err != nil {
			return 0, errors.NotifierFailed(p.Name(), err).WithDetail("root", root)
		}
		prints[root] = fp
	}

	interval := max(p.interval, latency)
	cursor := p.clock.seed(since)
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.run(roots, prints, interval, p.done, onChange)

	p.logger.WithField("roots", len(roots)).WithField("interval", interval).Debug("poll subscription started")
	return cursor, nil
}

func (p *Poller) Unsubscribe() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done == nil {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	p.done = nil
	return nil
}

func (p *Poller) run(roots []string, prints map[string]uint64, interval time.Duration, done <-chan struct{}, onChange func(Change)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var changed []string
			for _, root := range roots {
				fp, err := fingerprint(root)
				if err != nil {
					// The scan will report the failure; keep polling
					p.logger.WithError(err).WithField("root", root).Debug("Fingerprint failed")
					continue
				}
				if fp != prints[root] {
					prints[root] = fp
					changed = append(changed, root)
				}
			}
			if len(changed) > 0 {
				p.clock.advance()
				onChange(Change{Paths: changed})
			}
		case <-done:
			return
		}
	}
}

// fingerprint hashes the path, size and mtime of every entry below root.
// WalkDir visits entries in lexical order, so equal trees hash equally.
func fingerprint(root string) (uint64, error) {
	h := fnv.New64a()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		info, err := d.Info()
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		_, _ = h.Write([]byte(path))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(strconv.AppendInt(nil, info.Size(), 10))
		_, _ = h.Write(strconv.AppendInt(nil, info.ModTime().UnixNano(), 10))
		return nil
	})
	return h.Sum64(), err
}
