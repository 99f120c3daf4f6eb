// Package store provides the observable status snapshot of the watchd daemon.
package store

import "time"

// State is the daemon's status view. It is derived data: the coordinator
// remains the owner of roots and indices.
type State struct {
	StartedAt  time.Time      `json:"started_at"`
	Phase      string         `json:"phase"`
	Notifier   string         `json:"notifier"`
	Cursor     uint64         `json:"cursor"`
	Roots      map[string]int `json:"roots"` // file count keyed by root
	NewFiles   []string       `json:"new_files"`
	LastScan   time.Time      `json:"last_scan"`
	Scans      int            `json:"scans"`
	Dispatched int            `json:"dispatched"`
	Failed     int            `json:"failed"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdatePhase    UpdateType = "phase"
	UpdateRoots    UpdateType = "roots"
	UpdateScan     UpdateType = "scan"
	UpdateDispatch UpdateType = "dispatch"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType
	Source  string // Component that sent the update (e.g. "coordinator")
	Scanned int    // Number of roots scanned, for scan updates
	Payload interface{}
}

// PhasePayload accompanies UpdatePhase.
type PhasePayload struct {
	Phase    string
	Notifier string
}

// ScanPayload accompanies UpdateRoots and UpdateScan.
type ScanPayload struct {
	Roots    map[string]int
	NewFiles []string
	Cursor   uint64
}

// DispatchPayload accompanies UpdateDispatch.
type DispatchPayload struct {
	Command   string
	Files     []string
	Succeeded int
	Failed    int
}
