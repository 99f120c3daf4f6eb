package protocol

import "time"

// Status is the JSON payload answering CmdStatus.
type Status struct {
	PID        int          `json:"pid"`
	Version    string       `json:"version,omitempty"`
	State      string       `json:"state"`
	Notifier   string       `json:"notifier"`
	Cursor     uint64       `json:"cursor"`
	StartedAt  time.Time    `json:"started_at"`
	LastScan   time.Time    `json:"last_scan,omitzero"`
	Scans      int          `json:"scans"`
	NewFiles   int          `json:"new_files"`
	Dispatched int          `json:"dispatched"`
	Failed     int          `json:"failed"`
	Roots      []RootStatus `json:"roots"`
}

// RootStatus describes one tracked root.
type RootStatus struct {
	Path  string `json:"path"`
	Files int    `json:"files"`
}
