package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/Maximelego/custom-workspaces/internal/sequence"
	"github.com/Maximelego/custom-workspaces/internal/session"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Session is the lifecycle surface exposed over the socket.
type Session interface {
	Enable(ctx context.Context) error
	Disable()
	Reload(ctx context.Context) error
	Status() session.Status
	Plan() ([]sequence.Step, error)
}

// Executor runs fn alongside the rest of the daemon's work, typically
// on its event loop.
type Executor func(ctx context.Context, fn func() error) error

// Server hosts the control socket and serves requests.
type Server struct {
	session    Session
	exec       Executor
	logger     *util.Logger
	socketPath string

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a new control server. An empty socketPath selects
// DefaultSocketPath; a nil exec runs requests on the connection goroutine.
func NewServer(sess Session, exec Executor, logger *util.Logger, socketPath string) (*Server, error) {
	if socketPath == "" {
		var err error
		socketPath, err = DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	if exec == nil {
		exec = func(_ context.Context, fn func() error) error { return fn() }
	}
	return &Server{
		session:    sess,
		exec:       exec,
		logger:     logger,
		socketPath: socketPath,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve listens on the control socket until the context is cancelled.
// In-flight connections are drained before it returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	})
	defer stop()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	s.logger.Debugf("control request %q", req.Action)
	switch req.Action {
	case ActionStatus:
		var status session.Status
		s.respond(ctx, conn, func() error {
			status = s.session.Status()
			return nil
		}, &status)
	case ActionPlan:
		var result PlanResult
		s.respond(ctx, conn, func() error {
			steps, err := s.session.Plan()
			if err != nil {
				return err
			}
			result = NewPlanResult(steps)
			return nil
		}, &result)
	case ActionReload:
		s.respond(ctx, conn, func() error {
			s.logger.Infof("reload requested over control socket")
			return s.session.Reload(ctx)
		}, nil)
	case ActionEnable:
		s.respond(ctx, conn, func() error { return s.session.Enable(ctx) }, nil)
	case ActionDisable:
		s.respond(ctx, conn, func() error {
			s.session.Disable()
			return nil
		}, nil)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

// respond runs fn through the executor and writes data on success.
func (s *Server) respond(ctx context.Context, conn net.Conn, fn func() error, data any) {
	if err := s.exec(ctx, fn); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, data)
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
