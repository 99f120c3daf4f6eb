// Package backup persists the change cursor and every root's file index
// between daemon runs.
package backup

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
)

// FileEntry is one indexed file and its last-known modification time.
// Times are written as RFC 3339 with nanoseconds so they round-trip exactly.
type FileEntry struct {
	Path string    `json:"path" jsonschema:"minLength=1"`
	Time time.Time `json:"time"`
}

// RootEntry is the persisted index of one watched root.
type RootEntry struct {
	Root  string      `json:"folder_root" jsonschema:"minLength=1"`
	Files []FileEntry `json:"paths_and_times"`
}

// Record is a full snapshot: each save replaces the previous one.
type Record struct {
	Cursor uint64      `json:"lasteventid" jsonschema:"description=Change cursor at the time of the save"`
	Roots  []RootEntry `json:"folder_scan_list"`
}

// Root returns the entry for root, if present.
func (r *Record) Root(root string) (RootEntry, bool) {
	if r == nil {
		return RootEntry{}, false
	}
	for _, entry := range r.Roots {
		if entry.Root == root {
			return entry, true
		}
	}
	return RootEntry{}, false
}

// RootPaths lists the recorded roots in file order.
func (r *Record) RootPaths() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Roots))
	for _, entry := range r.Roots {
		out = append(out, entry.Root)
	}
	return out
}

// GenerateSchema reflects the backup document schema.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(&Record{})
	s.Title = "watchd backup"
	s.Description = "Persisted directory indexes and change cursor."
	s.Version = "http://json-schema.org/draft-07/schema#"
	return json.MarshalIndent(s, "", "  ")
}
