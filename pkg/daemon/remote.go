package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/pkg/protocol"
)

// DefaultRequestTimeout bounds a request whose context has no deadline.
const DefaultRequestTimeout = 10 * time.Second

// RemoteClient implements Client over the daemon's unix socket. Each request
// uses its own connection.
type RemoteClient struct {
	socketPath string
	timeout    time.Duration
}

// NewRemoteClient creates a new RemoteClient for socketPath.
func NewRemoteClient(socketPath string) *RemoteClient {
	return &RemoteClient{
		socketPath: socketPath,
		timeout:    DefaultRequestTimeout,
	}
}

// do sends cmd and returns the response frame.
func (c *RemoteClient) do(ctx context.Context, cmd protocol.Command) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "watchd daemon is not running").
			WithDetail("socket", c.socketPath)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := protocol.WriteCommand(conn, cmd); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	payload, err := protocol.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", cmd, err)
	}
	return payload, nil
}

// ListFiles returns the daemon's detected files.
func (c *RemoteClient) ListFiles(ctx context.Context) ([]string, error) {
	payload, err := c.do(ctx, protocol.CmdListFiles)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeFileList(string(payload)), nil
}

// Quit asks the daemon to shut down.
func (c *RemoteClient) Quit(ctx context.Context) (string, error) {
	payload, err := c.do(ctx, protocol.CmdQuit)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Status returns the daemon's status document.
func (c *RemoteClient) Status(ctx context.Context) (*protocol.Status, error) {
	payload, err := c.do(ctx, protocol.CmdStatus)
	if err != nil {
		return nil, err
	}
	var st protocol.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, errors.Protocol("invalid status document", err)
	}
	return &st, nil
}

// IsRunning returns true if the daemon answers a status request.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Status(ctx)
	return err == nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
