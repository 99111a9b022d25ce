package ipc

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/2thetop/scalar/errors"
)

// DefaultConnTimeout bounds a single request/response exchange.
const DefaultConnTimeout = 30 * time.Second

// HandlerFunc answers one request. It must always return a response.
type HandlerFunc func(req *Request) *Response

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithConnTimeout sets the per-connection deadline.
func WithConnTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.connTimeout = d
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server accepts requests on a Unix socket and dispatches them by command.
type Server struct {
	socketPath  string
	connTimeout time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	listener net.Listener
	wg       sync.WaitGroup
	closing  chan struct{}
	stopOnce sync.Once
}

// NewServer creates a server for socketPath. Call Start to listen.
func NewServer(socketPath string, opts ...ServerOption) *Server {
	s := &Server{
		socketPath:  socketPath,
		connTimeout: DefaultConnTimeout,
		logger:      slog.New(slog.DiscardHandler),
		handlers:    make(map[string]HandlerFunc),
		closing:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Handle registers handler for command, replacing any previous handler.
func (s *Server) Handle(command string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = handler
}

// Start listens on the socket and serves connections in the background.
// A stale socket file is removed first.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create socket directory"),
			"path", s.socketPath,
		)
	}
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "failed to listen"),
			"path", s.socketPath,
		)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to restrict socket permissions"),
			"path", s.socketPath,
		)
	}

	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("ipc server listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener, waits for open connections and removes the
// socket file. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.closing)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.wg.Wait()
		_ = os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return
			default:
				s.logger.Warn("accept failed", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(s.connTimeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logger.Warn("failed to read request", "error", err)
		if errors.GetCode(err) == errors.CodeInvalidInput {
			_ = WriteFrame(conn, ErrorResponse(ErrCodeValidation, "malformed request"))
		}
		return
	}

	resp := s.dispatch(&req)
	if err := WriteFrame(conn, resp); err != nil {
		s.logger.Warn("failed to write response", "command", req.Command, "error", err)
	}
}

// dispatch routes req to its handler. Handler panics become INTERNAL_ERROR
// responses.
func (s *Server) dispatch(req *Request) (resp *Response) {
	if req.ProtocolVersion != ProtocolVersion {
		s.logger.Warn("rejecting request with unsupported protocol version",
			"command", req.Command,
			"protocol_version", req.ProtocolVersion)
		return ErrorResponse(ErrCodeProtocolMismatch,
			fmt.Sprintf("protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion))
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		s.logger.Warn("unknown command", "command", req.Command)
		return ErrorResponse(ErrCodeUnknownCommand, fmt.Sprintf("unknown command: %q", req.Command))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked",
				"command", req.Command,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			resp = ErrorResponse(ErrCodeInternal, "internal error")
		}
	}()
	resp = handler(req)
	if resp == nil {
		resp = ErrorResponse(ErrCodeInternal, "handler returned no response")
	}
	return resp
}
