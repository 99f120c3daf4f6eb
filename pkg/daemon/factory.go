package daemon

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/watchd/pkg/paths"
)

// New returns a RemoteClient when a daemon answers on socketPath, otherwise a
// LocalClient. An empty socketPath means the default location.
func New(socketPath string) Client {
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}

	// Check if socket exists and we can connect
	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return NewRemoteClient(socketPath)
		}
	}

	// Fallback: daemon not running
	return NewLocalClient(socketPath)
}
