// Package scanner maintains the per-root file index and classifies files as
// new, updated or unchanged on every scan.
package scanner

import (
	stderrors "errors"
	"io/fs"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/util/pathutil"
)

// Status is the classification a record received in the last scan.
type Status int

const (
	StatusUnchanged Status = iota
	StatusNew
	StatusUpdated
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Record is one indexed file.
type Record struct {
	Path    string
	ModTime time.Time
	Status  Status
}

// Entry is the persisted form of a record.
type Entry struct {
	Path    string
	ModTime time.Time
}

// Index is the file index of one watched root. It is not safe for concurrent
// use; callers serialize access.
type Index struct {
	root    string
	filter  *Filter
	records map[string]*Record
}

// New creates an empty index for root and runs the initial scan, so every
// matching file starts out as StatusNew.
func New(root string, filter *Filter) (*Index, error) {
	return Restore(root, filter, nil)
}

// Restore creates an index pre-seeded with persisted entries, all marked
// StatusUnchanged, then scans immediately so changes made while the daemon
// was stopped are classified against the seed.
func Restore(root string, filter *Filter, seed []Entry) (*Index, error) {
	ix, err := Open(root, filter, seed)
	if err != nil {
		return nil, err
	}
	if err := ix.Scan(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Open validates root and seeds the index without scanning it. Only a root
// that is missing or is not a directory is an error.
func Open(root string, filter *Filter, seed []Entry) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.ScanFailed(root, err)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.ScanFailed(abs, err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidInput, abs+" is not a directory").
			WithDetail("root", abs)
	}

	ix := &Index{
		root:    abs,
		filter:  filter,
		records: make(map[string]*Record, len(seed)),
	}
	for _, e := range seed {
		path := filepath.Clean(e.Path)
		if !pathutil.IsWithin(abs, path) || path == abs {
			continue
		}
		ix.records[path] = &Record{Path: path, ModTime: e.ModTime, Status: StatusUnchanged}
	}
	return ix, nil
}

// Root returns the absolute root path.
func (ix *Index) Root() string {
	return ix.root
}

// Scan re-walks the whole root.
func (ix *Index) Scan() error {
	return ix.scanScope(ix.root)
}

// ScanSubdir re-walks only dir, which must be the root or lie beneath it.
// Records outside dir keep their current status.
func (ix *Index) ScanSubdir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.InvalidScanScope(ix.root, dir)
	}
	abs = filepath.Clean(abs)
	if !pathutil.IsWithin(ix.root, abs) {
		return errors.InvalidScanScope(ix.root, abs)
	}
	return ix.scanScope(abs)
}

// scanScope walks scope and commits the result only if the walk completes,
// so a failed scan leaves the index untouched.
func (ix *Index) scanScope(scope string) error {
	seen := make(map[string]time.Time)

	err := filepath.WalkDir(scope, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != ix.root {
			rel, relErr := filepath.Rel(ix.root, path)
			if relErr == nil && ix.filter.Ignored(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if d.IsDir() || !d.Type().IsRegular() || !ix.filter.Interesting(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between listing and stat
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		seen[path] = info.ModTime()
		return nil
	})
	if err != nil {
		return errors.ScanFailed(scope, err)
	}

	for path, rec := range ix.records {
		if !pathutil.IsWithin(scope, path) {
			continue
		}
		if _, ok := seen[path]; !ok {
			delete(ix.records, path)
			continue
		}
		rec.Status = StatusUnchanged
	}

	for path, mtime := range seen {
		rec, ok := ix.records[path]
		if !ok {
			ix.records[path] = &Record{Path: path, ModTime: mtime, Status: StatusNew}
			continue
		}
		if mtime.After(rec.ModTime) {
			rec.Status = StatusUpdated
		}
		rec.ModTime = mtime
	}
	return nil
}

// NewFiles yields, in path order, every file classified new or updated by
// the last scan. The sequence reads the index each time it is ranged over
// and does not clear any status.
func (ix *Index) NewFiles() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, path := range slices.Sorted(maps.Keys(ix.records)) {
			if ix.records[path].Status == StatusUnchanged {
				continue
			}
			if !yield(path) {
				return
			}
		}
	}
}

// Lookup returns a copy of the record for path.
func (ix *Index) Lookup(path string) (Record, bool) {
	rec, ok := ix.records[filepath.Clean(path)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Entries returns the persisted form of the index in path order.
func (ix *Index) Entries() []Entry {
	out := make([]Entry, 0, len(ix.records))
	for _, path := range slices.Sorted(maps.Keys(ix.records)) {
		out = append(out, Entry{Path: path, ModTime: ix.records[path].ModTime})
	}
	return out
}

// Len returns the number of indexed files.
func (ix *Index) Len() int {
	return len(ix.records)
}
