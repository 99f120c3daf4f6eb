package daemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/pkg/protocol"
	"github.com/grovetools/watchd/testutil"
)

// serveOnce answers requests with fixed payloads until the listener closes.
func serveOnce(t *testing.T, sock string, responses map[protocol.Command]string) {
	t.Helper()
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			cmd, err := protocol.ReadCommand(conn)
			if err == nil {
				_ = protocol.WriteString(conn, responses[cmd])
			}
			_ = conn.Close()
		}
	}()
}

func TestNewFallsBackToLocalClient(t *testing.T) {
	sock := filepath.Join(testutil.ShortTempDir(t), "none.sock")

	client := New(sock)
	_, ok := client.(*LocalClient)
	require.True(t, ok, "expected LocalClient, got %T", client)
	assert.False(t, client.IsRunning())

	_, err := client.ListFiles(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
	_, err = client.Quit(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
	_, err = client.Status(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
}

func TestRemoteClient(t *testing.T) {
	sock := filepath.Join(testutil.ShortTempDir(t), "w.sock")
	serveOnce(t, sock, map[protocol.Command]string{
		protocol.CmdListFiles: "/music/a.flac,/music/b.flac",
		protocol.CmdQuit:      protocol.QuitAck,
		protocol.CmdStatus:    `{"pid":7,"state":"watching","notifier":"poll","cursor":3,"started_at":"2024-01-02T03:04:05Z","scans":1,"new_files":2,"dispatched":0,"failed":0,"roots":[{"path":"/music","files":2}]}`,
	})

	client := New(sock)
	_, ok := client.(*RemoteClient)
	require.True(t, ok, "expected RemoteClient, got %T", client)
	defer client.Close()
	assert.True(t, client.IsRunning())

	files, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/music/a.flac", "/music/b.flac"}, files)

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, st.PID)
	assert.Equal(t, []protocol.RootStatus{{Path: "/music", Files: 2}}, st.Roots)

	ack, err := client.Quit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.QuitAck, ack)
}

func TestRemoteClientEmptyList(t *testing.T) {
	sock := filepath.Join(testutil.ShortTempDir(t), "w.sock")
	serveOnce(t, sock, map[protocol.Command]string{protocol.CmdListFiles: ""})

	files, err := NewRemoteClient(sock).ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRemoteClientUnreachable(t *testing.T) {
	sock := filepath.Join(testutil.ShortTempDir(t), "gone.sock")
	_, err := NewRemoteClient(sock).ListFiles(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
}
