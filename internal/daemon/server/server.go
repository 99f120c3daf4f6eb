// Package server provides the control-plane server for the watchd daemon.
package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/protocol"
)

// Handler answers control-plane queries. Implementations must return
// snapshots that are safe to use after the call.
type Handler interface {
	NewFiles() []string
	Status() protocol.Status
}

// Options configures a Server.
type Options struct {
	// ReadTimeout bounds how long a client may take to send its command.
	// Zero waits until shutdown.
	ReadTimeout time.Duration
	// OnQuit runs after a Quit request has been acknowledged and the
	// listener closed.
	OnQuit func()
	Logger *logrus.Entry
}

// Server manages the daemon's control socket. Connections are served one at
// a time, one request each.
type Server struct {
	logger      *logrus.Entry
	handler     Handler
	readTimeout time.Duration
	onQuit      func()

	mu         sync.Mutex
	listener   net.Listener
	socketPath string

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a new Server instance.
func New(h Handler, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("server")
	}
	return &Server{
		logger:      opts.Logger,
		handler:     h,
		readTimeout: opts.ReadTimeout,
		onQuit:      opts.OnQuit,
		shutdown:    make(chan struct{}),
	}
}

// Listen binds the unix socket at socketPath. A stale socket file is removed;
// a socket some other process still answers on is an error.
func (s *Server) Listen(socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond); err == nil {
			_ = conn.Close()
			return errors.SocketBindFailed(socketPath, fmt.Errorf("socket is in use by another process"))
		}
		if err := os.Remove(socketPath); err != nil {
			return errors.SocketBindFailed(socketPath, fmt.Errorf("failed to remove stale socket: %w", err))
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return errors.SocketBindFailed(socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.SocketBindFailed(socketPath, err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return errors.SocketBindFailed(socketPath, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.socketPath = socketPath
	s.mu.Unlock()

	s.logger.WithField("socket", socketPath).Info("Control socket listening")
	return nil
}

// ListenAndServe binds socketPath and serves until Shutdown or Quit.
func (s *Server) ListenAndServe(socketPath string) error {
	if err := s.Listen(socketPath); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Shutdown or a Quit request. It returns nil
// on an orderly stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New(errors.ErrCodeInternal, "server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing() || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Warn("Accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if quit := s.serveConn(conn); quit {
			s.Shutdown()
			if s.onQuit != nil {
				s.onQuit()
			}
			return nil
		}
	}
}

type readResult struct {
	cmd protocol.Command
	err error
}

// serveConn handles one request and closes conn. It reports whether the
// request was Quit.
func (s *Server) serveConn(conn net.Conn) bool {
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}

	res := make(chan readResult, 1)
	go func() {
		cmd, err := protocol.ReadCommand(conn)
		res <- readResult{cmd: cmd, err: err}
	}()

	var r readResult
	select {
	case <-s.shutdown:
		return false
	case r = <-res:
	}
	if r.err != nil {
		if stderrors.Is(r.err, io.EOF) {
			// Liveness probes connect and close without a request.
			s.logger.Debug("Client closed without a request")
			return false
		}
		s.logger.WithError(r.err).Warn("Dropping malformed request")
		return false
	}

	logger := s.logger.WithField("command", r.cmd.String())
	logger.Debug("Handling request")

	var err error
	switch r.cmd {
	case protocol.CmdListFiles:
		err = protocol.WriteString(conn, protocol.EncodeFileList(s.handler.NewFiles()))
	case protocol.CmdStatus:
		var payload []byte
		payload, err = json.Marshal(s.handler.Status())
		if err == nil {
			err = protocol.WriteFrame(conn, payload)
		}
	case protocol.CmdQuit:
		if err := protocol.WriteString(conn, protocol.QuitAck); err != nil {
			logger.WithError(err).Warn("Failed to acknowledge quit")
		}
		logger.Info("Quit requested")
		return true
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to write response")
	}
	return false
}

func (s *Server) closing() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting connections and removes the socket file. It is
// safe to call from any goroutine, more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.listener == nil {
			return
		}
		s.logger.Info("Shutting down control socket")
		// Closing a unix listener unlinks its socket file.
		_ = s.listener.Close()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to remove socket")
		}
	})
}

// SocketPath returns the bound socket path, or "" before Listen.
func (s *Server) SocketPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socketPath
}
