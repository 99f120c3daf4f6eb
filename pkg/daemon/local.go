package daemon

import (
	"context"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/pkg/protocol"
)

// LocalClient stands in when no daemon is reachable. Every request fails with
// DAEMON_NOT_RUNNING so callers can print a useful hint.
type LocalClient struct {
	socketPath string
}

// NewLocalClient creates a new LocalClient.
func NewLocalClient(socketPath string) *LocalClient {
	return &LocalClient{socketPath: socketPath}
}

func (c *LocalClient) ListFiles(ctx context.Context) ([]string, error) {
	return nil, errors.DaemonNotRunning(c.socketPath)
}

func (c *LocalClient) Quit(ctx context.Context) (string, error) {
	return "", errors.DaemonNotRunning(c.socketPath)
}

func (c *LocalClient) Status(ctx context.Context) (*protocol.Status, error) {
	return nil, errors.DaemonNotRunning(c.socketPath)
}

// IsRunning returns false since this is the fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
