package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Maximelego/custom-workspaces/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// SessionStatus mirrors the daemon's session state.
	SessionStatus = control.SessionStatus
	// PlanStep is one startup action reported by the daemon.
	PlanStep = control.PlanStep
	// PlanResult captures the startup playlist reported by the daemon.
	PlanResult = control.PlanResult
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the session state and metrics.
func (c *Client) Status(ctx context.Context) (SessionStatus, error) {
	var status SessionStatus
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

// Plan retrieves the startup playlist of the running or on-disk configuration.
func (c *Client) Plan(ctx context.Context) (PlanResult, error) {
	var result PlanResult
	if err := c.do(ctx, control.Request{Action: control.ActionPlan}, &result); err != nil {
		return PlanResult{}, err
	}
	return result, nil
}

// Reload asks the daemon to tear the session down and bootstrap it again.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

// Enable asks the daemon to bootstrap the session if it is not running.
func (c *Client) Enable(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionEnable}, nil)
}

// Disable asks the daemon to cancel pending actions and stop dynamic rules.
func (c *Client) Disable(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionDisable}, nil)
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
