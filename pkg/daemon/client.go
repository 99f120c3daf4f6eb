// Package daemon provides a client for the watchd control socket.
// It implements a transparent fallback pattern: if the daemon is running,
// requests go over the socket; if not, a LocalClient reports that clearly.
package daemon

import (
	"context"

	"github.com/grovetools/watchd/pkg/protocol"
)

// Client defines the interface for interacting with the watchd daemon.
// Both RemoteClient (socket) and LocalClient (no daemon) implement it.
type Client interface {
	// ListFiles returns the files the daemon has detected as new or updated.
	ListFiles(ctx context.Context) ([]string, error)

	// Quit asks the daemon to shut down and returns its acknowledgement.
	Quit(ctx context.Context) (string, error)

	// Status returns the daemon's status document.
	Status(ctx context.Context) (*protocol.Status, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
