package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Transport issues requests to the compositor.
type Transport interface {
	// Command runs one request such as {"dispatch", "workspace", "2"}.
	Command(ctx context.Context, args ...string) error
	// Batch runs several requests in one round trip.
	Batch(ctx context.Context, commands [][]string) error
	// Query returns the JSON reply for a topic such as "clients".
	Query(ctx context.Context, topic string) ([]byte, error)
}

// Client wraps hyprctl shell-outs.
type Client struct {
	Binary string
}

// NewClient returns a hyprctl client using the binary on PATH.
func NewClient() *Client {
	return &Client{Binary: "hyprctl"}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("hyprctl %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Command invokes `hyprctl <args>` and checks the reply.
func (c *Client) Command(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return nil
	}
	reply, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	return checkReply(reply)
}

// Batch invokes `hyprctl --batch`.
func (c *Client) Batch(ctx context.Context, commands [][]string) error {
	lines := joinCommands(commands)
	if len(lines) == 0 {
		return nil
	}
	reply, err := c.run(ctx, "--batch", strings.Join(lines, " ; "))
	if err != nil {
		return err
	}
	return checkReply(reply)
}

// Query invokes `hyprctl -j <topic>`.
func (c *Client) Query(ctx context.Context, topic string) ([]byte, error) {
	return c.run(ctx, "-j", topic)
}

// ClientInfo is the subset of a Hyprland client the daemon reads.
type ClientInfo struct {
	Address      string
	Class        string
	InitialClass string
	Title        string
	WorkspaceID  int
}

// ListClients returns all clients known to the compositor.
func ListClients(ctx context.Context, t Transport) ([]ClientInfo, error) {
	data, err := t.Query(ctx, "clients")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Address      string `json:"address"`
		Class        string `json:"class"`
		InitialClass string `json:"initialClass"`
		Title        string `json:"title"`
		Workspace    struct {
			ID int `json:"id"`
		} `json:"workspace"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	clients := make([]ClientInfo, 0, len(raw))
	for _, cl := range raw {
		clients = append(clients, ClientInfo{
			Address:      cl.Address,
			Class:        cl.Class,
			InitialClass: cl.InitialClass,
			Title:        cl.Title,
			WorkspaceID:  cl.Workspace.ID,
		})
	}
	return clients, nil
}

func joinCommands(commands [][]string) []string {
	lines := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if len(cmd) == 0 {
			continue
		}
		lines = append(lines, strings.Join(cmd, " "))
	}
	return lines
}

// checkReply accepts empty replies and any number of "ok" lines.
func checkReply(reply []byte) error {
	for _, line := range strings.Split(string(reply), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "ok" {
			continue
		}
		return fmt.Errorf("hyprland replied %q", line)
	}
	return nil
}

var _ Transport = (*Client)(nil)

// DispatchStrategy describes how requests are issued to Hyprland.
type DispatchStrategy string

const (
	// DispatchStrategySocket uses the Hyprland command socket directly.
	DispatchStrategySocket DispatchStrategy = "socket"
	// DispatchStrategyHyprctl shells out to the hyprctl binary.
	DispatchStrategyHyprctl DispatchStrategy = "hyprctl"
)
