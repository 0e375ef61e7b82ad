package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const socketTimeout = 2 * time.Second

type socketTransport struct {
	path string
}

func newSocketTransport() (*socketTransport, error) {
	path, err := commandSocketPath()
	if err != nil {
		return nil, err
	}
	return &socketTransport{path: path}, nil
}

// request writes one payload and reads the reply until the compositor
// closes the connection.
func (s *socketTransport) request(ctx context.Context, payload string) ([]byte, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("connect command socket: %w", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(socketTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	if _, err := conn.Write([]byte(payload)); err != nil {
		return nil, fmt.Errorf("write command payload: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read command reply: %w", err)
	}
	return reply, nil
}

func (s *socketTransport) Command(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return nil
	}
	reply, err := s.request(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return checkReply(reply)
}

func (s *socketTransport) Batch(ctx context.Context, commands [][]string) error {
	lines := joinCommands(commands)
	switch len(lines) {
	case 0:
		return nil
	case 1:
		reply, err := s.request(ctx, lines[0])
		if err != nil {
			return err
		}
		return checkReply(reply)
	}
	reply, err := s.request(ctx, "[[BATCH]]"+strings.Join(lines, ";"))
	if err != nil {
		return err
	}
	return checkReply(reply)
}

func (s *socketTransport) Query(ctx context.Context, topic string) ([]byte, error) {
	return s.request(ctx, "j/"+topic)
}

func (s *socketTransport) SocketPath() string {
	return s.path
}

func instanceDir() (string, error) {
	sig := os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig), nil
}

func commandSocketPath() (string, error) {
	dir, err := instanceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".socket.sock"), nil
}

var _ Transport = (*socketTransport)(nil)
