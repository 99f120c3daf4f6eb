package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/schema"
	"github.com/grovetools/watchd/util/pathutil"
)

// Manager loads and saves backup records. The coordinator depends only on
// this interface so the storage format can change independently.
type Manager interface {
	// Load reads the record. A missing file returns (nil, nil).
	Load() (*Record, error)
	// Save atomically replaces the stored record.
	Save(rec *Record) error
	// IsMonitoredRoot reports whether the last loaded or saved record has root.
	IsMonitoredRoot(root string) bool
	// RootFiles returns the recorded files of root.
	RootFiles(root string) []FileEntry
	// Cursor returns the recorded cursor, or 0.
	Cursor() uint64
}

// JSONManager stores the record as an indented, hand-editable JSON document.
type JSONManager struct {
	path      string
	validator *schema.Validator

	mu     sync.RWMutex
	record *Record
}

var _ Manager = (*JSONManager)(nil)

// NewJSONManager creates a manager for path (~ and $VARS are expanded).
func NewJSONManager(path string) (*JSONManager, error) {
	expanded, err := pathutil.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid backup path").
			WithDetail("path", path)
	}
	validator, err := schema.NewBackupValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create backup validator")
	}
	return &JSONManager{path: expanded, validator: validator}, nil
}

// Path returns the backup file location.
func (m *JSONManager) Path() string {
	return m.path
}

// Load reads, validates and decodes the backup. A present but unreadable,
// truncated or invalid file is BACKUP_CORRUPT.
func (m *JSONManager) Load() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.setRecord(nil)
			return nil, nil
		}
		return nil, errors.BackupCorrupt(m.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.BackupCorrupt(m.path, fmt.Errorf("file is empty"))
	}

	if err := m.validator.ValidateJSON(data); err != nil {
		return nil, errors.BackupCorrupt(m.path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.BackupCorrupt(m.path, err)
	}

	m.setRecord(&rec)
	return &rec, nil
}

// Save writes rec to a temporary file in the same directory, syncs it and
// renames it over the previous backup.
func (m *JSONManager) Save(rec *Record) error {
	if rec == nil {
		rec = &Record{}
	}
	for i := range rec.Roots {
		if rec.Roots[i].Files == nil {
			rec.Roots[i].Files = []FileEntry{}
		}
	}
	if rec.Roots == nil {
		rec.Roots = []RootEntry{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.BackupWriteFailed(m.path, err)
	}
	data = append(data, '\n')

	if err := writeAtomic(m.path, data); err != nil {
		return errors.BackupWriteFailed(m.path, err)
	}

	m.setRecord(rec)
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (m *JSONManager) setRecord(rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
}

func (m *JSONManager) IsMonitoredRoot(root string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.record.Root(root)
	return ok
}

func (m *JSONManager) RootFiles(root string) []FileEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.record.Root(root)
	if !ok {
		return nil
	}
	return append([]FileEntry(nil), entry.Files...)
}

func (m *JSONManager) Cursor() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return 0
	}
	return m.record.Cursor
}
