package server

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/pkg/protocol"
	"github.com/grovetools/watchd/testutil"
)

type staticHandler struct {
	mu    sync.Mutex
	files []string
}

func (h *staticHandler) NewFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.files...)
}

func (h *staticHandler) Status() protocol.Status {
	return protocol.Status{PID: 42, State: "watching", NewFiles: len(h.NewFiles())}
}

func startServer(t *testing.T, h Handler, opts Options) (*Server, string, <-chan error) {
	t.Helper()
	sock := filepath.Join(testutil.ShortTempDir(t), "w.sock")
	srv := New(h, opts)
	require.NoError(t, srv.Listen(sock))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve() }()
	t.Cleanup(srv.Shutdown)
	return srv, sock, errc
}

func request(t *testing.T, sock string, cmd protocol.Command) []byte {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteCommand(conn, cmd))
	payload, err := protocol.ReadFrame(conn)
	require.NoError(t, err)
	return payload
}

func TestListFiles(t *testing.T) {
	h := &staticHandler{}
	_, sock, _ := startServer(t, h, Options{})

	assert.Equal(t, "", string(request(t, sock, protocol.CmdListFiles)))

	h.mu.Lock()
	h.files = []string{"/music/a.flac", "/music/b.flac"}
	h.mu.Unlock()
	assert.Equal(t, "/music/a.flac,/music/b.flac", string(request(t, sock, protocol.CmdListFiles)))
}

func TestSocketPermissions(t *testing.T) {
	_, sock, _ := startServer(t, &staticHandler{}, Options{})
	info, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStatus(t *testing.T) {
	_, sock, _ := startServer(t, &staticHandler{files: []string{"/x.txt"}}, Options{})

	var st protocol.Status
	require.NoError(t, json.Unmarshal(request(t, sock, protocol.CmdStatus), &st))
	assert.Equal(t, 42, st.PID)
	assert.Equal(t, 1, st.NewFiles)
}

func TestQuit(t *testing.T) {
	quit := make(chan struct{})
	_, sock, errc := startServer(t, &staticHandler{}, Options{OnQuit: func() { close(quit) }})

	assert.Equal(t, protocol.QuitAck, string(request(t, sock, protocol.CmdQuit)))

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Quit")
	}
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("OnQuit not called")
	}

	_, err := net.Dial("unix", sock)
	assert.Error(t, err, "daemon must no longer be listening")
	assert.NoFileExists(t, sock)
}

func TestMalformedRequestKeepsServing(t *testing.T) {
	_, sock, _ := startServer(t, &staticHandler{files: []string{"/a.flac"}}, Options{})

	// Truncated command
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	_, _ = conn.Write([]byte{1, 0})
	_ = conn.Close()

	// Unknown command
	conn, err = net.Dial("unix", sock)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteCommand(conn, protocol.Command(77)))
	_, err = protocol.ReadFrame(conn)
	assert.Error(t, err, "connection is dropped without a response")
	_ = conn.Close()

	assert.Equal(t, "/a.flac", string(request(t, sock, protocol.CmdListFiles)))
}

func TestReadTimeoutReleasesTheServer(t *testing.T) {
	_, sock, _ := startServer(t, &staticHandler{}, Options{ReadTimeout: 100 * time.Millisecond})

	idle, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer idle.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = request(t, sock, protocol.CmdListFiles)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a silent client blocked the server")
	}
}

func TestShutdownUnblocksPendingRead(t *testing.T) {
	srv, sock, errc := startServer(t, &staticHandler{}, Options{})

	idle, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer idle.Close()
	time.Sleep(50 * time.Millisecond)

	srv.Shutdown()
	srv.Shutdown()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func TestStaleSocketIsReplaced(t *testing.T) {
	sock := filepath.Join(testutil.ShortTempDir(t), "w.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0600))

	srv := New(&staticHandler{}, Options{})
	require.NoError(t, srv.Listen(sock))
	srv.Shutdown()
}

func TestLiveSocketIsNotStolen(t *testing.T) {
	_, sock, _ := startServer(t, &staticHandler{}, Options{})

	err := New(&staticHandler{}, Options{}).Listen(sock)
	assert.True(t, errors.Is(err, errors.ErrCodeSocketBindFailed), "got %v", err)
}
