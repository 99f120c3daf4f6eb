// Package coordinator owns the tracked roots and drives the scan and dispatch
// cycle in response to change notifications.
package coordinator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/internal/backup"
	"github.com/grovetools/watchd/internal/daemon/store"
	"github.com/grovetools/watchd/internal/dispatch"
	"github.com/grovetools/watchd/internal/notifier"
	"github.com/grovetools/watchd/internal/scanner"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/profiling"
	"github.com/grovetools/watchd/pkg/protocol"
	"github.com/grovetools/watchd/util/pathutil"
)

// State is the coordinator lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Dispatcher runs one rule's job. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Execute(ctx context.Context, job dispatch.Job) dispatch.Result
}

// Options configures a Coordinator.
type Options struct {
	// Rules are consulted in declaration order.
	Rules  []config.FileTypeRule
	Filter *scanner.Filter
	// Latency is the notifier coalescing window.
	Latency time.Duration
	// ProcessExisting dispatches files found on a root's first scan when the
	// root has no backup.
	ProcessExisting bool
	// Timeout returns the child timeout for a rule. Nil means no timeout.
	Timeout func(config.FileTypeRule) time.Duration
	// MaxListBytes caps the encoded size of the detected-file list. The
	// oldest entries are dropped past it. Defaults to protocol.MaxFrameSize.
	MaxListBytes int
	Store        *store.Store
	Logger       *logrus.Entry
}

// Coordinator owns every tracked root and its index. All index access goes
// through mu; dispatch happens with mu released.
type Coordinator struct {
	opts       Options
	logger     *logrus.Entry
	notifier   notifier.Notifier
	backup     backup.Manager
	dispatcher Dispatcher
	store      *store.Store

	state atomic.Int32

	mu          sync.Mutex
	roots       map[string]*scanner.Index
	backlog     []string
	pending     map[string]bool
	detected    []string
	detectedSet map[string]struct{}
	listBytes   int
	listFull    bool
	record      *backup.Record
	loaded      bool
	loadErr     error

	wake       *wake
	workerDone chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	stopErr    error
}

// New creates an idle coordinator.
func New(opts Options, n notifier.Notifier, b backup.Manager, d Dispatcher) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("coordinator")
	}
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.MaxListBytes <= 0 {
		opts.MaxListBytes = protocol.MaxFrameSize
	}
	if opts.Filter == nil {
		opts.Filter = scanner.ExtensionFilter(config.DefaultExtensions)
	}
	return &Coordinator{
		opts:        opts,
		logger:      opts.Logger,
		notifier:    n,
		backup:      b,
		dispatcher:  d,
		store:       opts.Store,
		roots:       make(map[string]*scanner.Index),
		pending:     make(map[string]bool),
		detectedSet: make(map[string]struct{}),
		wake:        newWake(),
		done:        make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once the coordinator reaches StateStopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Store returns the status store the coordinator publishes to.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Cursor returns the notifier's current cursor.
func (c *Coordinator) Cursor() uint64 {
	return uint64(c.notifier.LatestCursor())
}

// NewFiles returns a snapshot of the files detected as new or updated since
// the daemon started, excluding files that have since disappeared.
func (c *Coordinator) NewFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.detected)
}

// Roots returns the tracked roots, sorted.
func (c *Coordinator) Roots() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.roots))
}

// AddFolders starts tracking paths. Already tracked roots are skipped. Each new
// root is restored from the backup when recorded there and scanned at once.
func (c *Coordinator) AddFolders(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.State(); s >= StateStopping {
		return errors.New(errors.ErrCodeInvalidInput, "cannot add folders: coordinator is "+s.String())
	}
	if err := c.loadBackupLocked(); err != nil {
		return err
	}

	added := 0
	for _, path := range paths {
		root, err := pathutil.Normalize(path)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid root").WithDetail("root", path)
		}
		ok, err := c.addRootLocked(root)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
	}
	return c.rootsChangedLocked(added)
}

// ResumeRoots starts tracking every root recorded in the backup. Roots that
// can no longer be scanned are skipped with a warning.
func (c *Coordinator) ResumeRoots() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.State(); s >= StateStopping {
		return nil, errors.New(errors.ErrCodeInvalidInput, "cannot resume roots: coordinator is "+s.String())
	}
	if err := c.loadBackupLocked(); err != nil {
		return nil, err
	}

	if c.record == nil {
		return nil, nil
	}

	var resumed []string
	for _, root := range c.record.RootPaths() {
		ok, err := c.addRootLocked(root)
		if err != nil {
			c.logger.WithError(err).WithField("root", root).Warn("Skipping recorded root")
			continue
		}
		if ok {
			resumed = append(resumed, root)
		}
	}
	return resumed, c.rootsChangedLocked(len(resumed))
}

// Start subscribes to changes over every tracked root from the backed-up
// cursor and launches the worker. ctx bounds the dispatched children.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.State(); s != StateIdle {
		return errors.New(errors.ErrCodeInvalidInput, "cannot start: coordinator is "+s.String())
	}
	if err := c.loadBackupLocked(); err != nil {
		return err
	}

	since := notifier.Cursor(c.backup.Cursor())
	roots := slices.Sorted(maps.Keys(c.roots))
	cursor, err := c.notifier.Subscribe(roots, c.opts.Latency, since, c.onChange)
	if err != nil {
		return err
	}

	c.state.Store(int32(StateWatching))
	c.workerDone = make(chan struct{})
	go func(w *wake) {
		defer close(c.workerDone)
		c.work(ctx, w)
	}(c.wake)

	if len(c.backlog) > 0 || len(c.pending) > 0 {
		c.wake.notify()
	}

	c.logger.WithFields(logrus.Fields{
		"roots":    len(roots),
		"notifier": c.notifier.Name(),
		"cursor":   uint64(cursor),
	}).Info("Watching for changes")
	c.publishPhase()
	c.publishRootsLocked(store.UpdateRoots)
	return nil
}

// Stop ends the worker, waits for an in-flight dispatch, saves the backup and
// unsubscribes. It is idempotent; later calls return the first result.
func (c *Coordinator) Stop() error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop()
	})
	return c.stopErr
}

func (c *Coordinator) stop() error {
	c.mu.Lock()
	prev := c.State()
	c.state.Store(int32(StateStopping))
	c.mu.Unlock()
	c.publishPhase()

	c.wake.stop()
	if prev == StateWatching {
		<-c.workerDone
	}

	var saveErr error
	c.mu.Lock()
	if err := c.loadBackupLocked(); err != nil {
		// Never replace a backup that could not be read.
		saveErr = err
		c.logger.WithError(err).Error("Backup not saved")
	} else {
		rec := c.snapshotLocked()
		span := profiling.Start("backup save")
		saveErr = c.backup.Save(rec)
		span.Stop()
		if saveErr != nil {
			c.logger.WithError(saveErr).Error("Failed to save backup")
		} else {
			c.logger.WithField("roots", len(rec.Roots)).WithField("cursor", rec.Cursor).Info("Backup saved")
		}
	}
	c.mu.Unlock()

	unsubErr := c.notifier.Unsubscribe()
	if unsubErr != nil {
		c.logger.WithError(unsubErr).Warn("Failed to unsubscribe notifier")
	}

	c.state.Store(int32(StateStopped))
	c.publishPhase()
	close(c.done)

	if saveErr != nil {
		return saveErr
	}
	return unsubErr
}

// onChange runs on the notifier goroutine.
func (c *Coordinator) onChange(ch notifier.Change) {
	c.logger.WithField("paths", len(ch.Paths)).Debug("Change notification")
	c.wake.notify()
}

func (c *Coordinator) work(ctx context.Context, w *wake) {
	for {
		select {
		case <-w.quit:
			return
		case <-ctx.Done():
			return
		case <-w.ch:
		}
		if w.stopped() {
			return
		}
		c.cycle(ctx)
	}
}

// cycle rescans every root, then dispatches the collected files with the
// guard released.
func (c *Coordinator) cycle(ctx context.Context) {
	c.mu.Lock()
	files := c.backlog
	c.backlog = nil
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f] = struct{}{}
	}

	scanned := 0
	span := profiling.Start("scan")
	for _, root := range slices.Sorted(maps.Keys(c.roots)) {
		ix := c.roots[root]
		if err := ix.Scan(); err != nil {
			c.logger.WithError(err).WithField("root", root).Warn("Scan failed, retrying on next change")
			continue
		}
		scanned++
		newFiles := slices.Collect(ix.NewFiles())
		if restored, ok := c.pending[root]; ok {
			delete(c.pending, root)
			newFiles = c.initialFilesLocked(ix, restored)
		}
		for _, path := range newFiles {
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}
	span.Stop()
	c.recordDetectedLocked(files)
	c.pruneDetectedLocked()
	c.publishRootsLocked(store.UpdateScan, scanned)
	c.mu.Unlock()

	if len(files) == 0 {
		return
	}
	c.logger.WithField("files", len(files)).Info("Detected new files")
	c.dispatch(ctx, files)
}

// dispatch hands each rule the files carrying its extension, in rule order.
// Files that match no rule are dropped.
func (c *Coordinator) dispatch(ctx context.Context, files []string) {
	for _, rule := range c.opts.Rules {
		var matched []string
		for _, f := range files {
			if rule.Matches(f) {
				matched = append(matched, f)
			}
		}
		if len(matched) == 0 {
			continue
		}

		job := dispatch.Job{
			Command: rule.Command,
			Args:    rule.Args,
			Files:   matched,
			Mode:    dispatch.ModeBatch,
			Keep:    rule.KeepInputs(),
		}
		if rule.Parallel {
			job.Mode = dispatch.ModeFanOut
		}
		if c.opts.Timeout != nil {
			job.Timeout = c.opts.Timeout(rule)
		}

		span := profiling.Start("dispatch " + rule.Extension)
		res := c.dispatcher.Execute(ctx, job)
		span.Stop()
		c.store.ApplyUpdate(store.Update{
			Type:   store.UpdateDispatch,
			Source: "coordinator",
			Payload: store.DispatchPayload{
				Command:   rule.Command,
				Files:     matched,
				Succeeded: len(res.Succeeded),
				Failed:    len(res.Failed),
			},
		})
	}
}

// addRootLocked builds and scans the index for root. It reports false when
// root is already tracked. Only a missing root is an error; a failed first
// scan keeps the root tracked and is retried by the next cycle.
func (c *Coordinator) addRootLocked(root string) (bool, error) {
	if _, ok := c.roots[root]; ok {
		return false, nil
	}

	restored := c.backup.IsMonitoredRoot(root)
	var seed []scanner.Entry
	if restored {
		files := c.backup.RootFiles(root)
		seed = make([]scanner.Entry, 0, len(files))
		for _, f := range files {
			seed = append(seed, scanner.Entry{Path: f.Path, ModTime: f.Time})
		}
	}
	ix, err := scanner.Open(root, c.opts.Filter, seed)
	if err != nil {
		return false, err
	}
	c.roots[ix.Root()] = ix

	if err := ix.Scan(); err != nil {
		c.logger.WithError(err).WithField("root", ix.Root()).Warn("Initial scan failed, retrying on next cycle")
		c.pending[ix.Root()] = restored
		return true, nil
	}
	c.backlog = append(c.backlog, c.initialFilesLocked(ix, restored)...)
	return true, nil
}

// initialFilesLocked records the files found by a root's first successful
// scan and returns those that must be dispatched. Files changed while stopped
// would be Unchanged after the next scan, so they are handed over now.
func (c *Coordinator) initialFilesLocked(ix *scanner.Index, restored bool) []string {
	var found []string
	for path := range ix.NewFiles() {
		found = append(found, path)
	}
	c.recordDetectedLocked(found)

	c.logger.WithFields(logrus.Fields{
		"root":     ix.Root(),
		"files":    ix.Len(),
		"new":      len(found),
		"restored": restored,
	}).Info("Tracking root")

	if restored || c.opts.ProcessExisting {
		return found
	}
	return nil
}

// rootsChangedLocked re-creates the subscription over the full root set and
// wakes the worker when roots were added while watching.
func (c *Coordinator) rootsChangedLocked(added int) error {
	if added == 0 {
		return nil
	}
	c.publishRootsLocked(store.UpdateRoots)
	if c.State() != StateWatching {
		return nil
	}

	if err := c.notifier.Unsubscribe(); err != nil {
		c.logger.WithError(err).Warn("Failed to drop previous subscription")
	}
	since := c.notifier.LatestCursor()
	roots := slices.Sorted(maps.Keys(c.roots))
	if _, err := c.notifier.Subscribe(roots, c.opts.Latency, since, c.onChange); err != nil {
		return err
	}
	c.wake.notify()
	return nil
}

func (c *Coordinator) loadBackupLocked() error {
	if !c.loaded {
		c.loaded = true
		c.record, c.loadErr = c.backup.Load()
	}
	return c.loadErr
}

func (c *Coordinator) recordDetectedLocked(paths []string) {
	for _, p := range paths {
		if _, ok := c.detectedSet[p]; ok {
			continue
		}
		c.detectedSet[p] = struct{}{}
		c.detected = append(c.detected, p)
		c.listBytes += listCost(p)
	}

	evicted := 0
	for c.listBytes > c.opts.MaxListBytes && len(c.detected) > 0 {
		oldest := c.detected[0]
		c.detected = c.detected[1:]
		delete(c.detectedSet, oldest)
		c.listBytes -= listCost(oldest)
		evicted++
	}
	if evicted > 0 && !c.listFull {
		c.logger.WithFields(logrus.Fields{
			"limit":   c.opts.MaxListBytes,
			"dropped": evicted,
		}).Warn("Detected file list is full, dropping oldest entries")
	}
	c.listFull = evicted > 0
}

// listCost is a path's share of the encoded list, separator included.
func listCost(path string) int {
	return len(path) + len(protocol.ListSeparator)
}

// pruneDetectedLocked forgets detected files that are no longer indexed.
func (c *Coordinator) pruneDetectedLocked() {
	c.detected = slices.DeleteFunc(c.detected, func(p string) bool {
		for root, ix := range c.roots {
			if pathutil.IsWithin(root, p) {
				if _, ok := ix.Lookup(p); ok {
					return false
				}
			}
		}
		delete(c.detectedSet, p)
		c.listBytes -= listCost(p)
		return true
	})
}

func (c *Coordinator) snapshotLocked() *backup.Record {
	cursor := uint64(c.notifier.LatestCursor())
	if prev := c.backup.Cursor(); prev > cursor {
		cursor = prev
	}

	rec := &backup.Record{Cursor: cursor, Roots: make([]backup.RootEntry, 0, len(c.roots))}
	for _, root := range slices.Sorted(maps.Keys(c.roots)) {
		// A new root that was never scanned has no index worth restoring.
		if restored, ok := c.pending[root]; ok && !restored {
			continue
		}
		entries := c.roots[root].Entries()
		files := make([]backup.FileEntry, 0, len(entries))
		for _, e := range entries {
			files = append(files, backup.FileEntry{Path: e.Path, Time: e.ModTime})
		}
		rec.Roots = append(rec.Roots, backup.RootEntry{Root: root, Files: files})
	}
	return rec
}

func (c *Coordinator) publishPhase() {
	c.store.ApplyUpdate(store.Update{
		Type:    store.UpdatePhase,
		Source:  "coordinator",
		Payload: store.PhasePayload{Phase: c.State().String(), Notifier: c.notifier.Name()},
	})
}

func (c *Coordinator) publishRootsLocked(kind store.UpdateType, scanned ...int) {
	counts := make(map[string]int, len(c.roots))
	for root, ix := range c.roots {
		counts[root] = ix.Len()
	}
	u := store.Update{
		Type:   kind,
		Source: "coordinator",
		Payload: store.ScanPayload{
			Roots:    counts,
			NewFiles: slices.Clone(c.detected),
			Cursor:   uint64(c.notifier.LatestCursor()),
		},
	}
	if len(scanned) > 0 {
		u.Scanned = scanned[0]
	}
	c.store.ApplyUpdate(u)
}
