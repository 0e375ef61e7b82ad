// Package ipc implements the desktop boundary on top of Hyprland's IPC
// sockets, falling back to hyprctl when the command socket is unavailable.
package ipc

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Window is a Hyprland client as announced by the event stream.
type Window struct {
	Address string
	Class   string
	Title   string
}

// ID returns the client address.
func (w Window) ID() string { return w.Address }

// Desktop drives Hyprland. Workspace index i is Hyprland workspace i+1.
type Desktop struct {
	transport Transport
	logger    *util.Logger
	subscribe func(context.Context, *util.Logger) (<-chan Event, error)

	mu    sync.Mutex
	count int
}

// NewDesktop returns a Desktop using the requested strategy when possible.
func NewDesktop(logger *util.Logger, requested DispatchStrategy) (*Desktop, DispatchStrategy, error) {
	switch requested {
	case DispatchStrategySocket, "":
		sock, err := newSocketTransport()
		if err != nil {
			logger.Warnf("falling back to hyprctl dispatch: %v", err)
			return NewDesktopWithTransport(NewClient(), logger), DispatchStrategyHyprctl, nil
		}
		logger.Debugf("using socket dispatch at %s", sock.SocketPath())
		return NewDesktopWithTransport(sock, logger), DispatchStrategySocket, nil
	case DispatchStrategyHyprctl:
		return NewDesktopWithTransport(NewClient(), logger), DispatchStrategyHyprctl, nil
	default:
		return nil, "", fmt.Errorf("unknown dispatch strategy %q", requested)
	}
}

// NewDesktopWithTransport returns a Desktop issuing requests through t.
func NewDesktopWithTransport(t Transport, logger *util.Logger) *Desktop {
	return &Desktop{transport: t, logger: logger, subscribe: Subscribe}
}

func workspaceID(index int) string {
	return strconv.Itoa(index + 1)
}

// inRange reports whether index resolves to a configured workspace. Before
// a policy is applied every non-negative index resolves.
func (d *Desktop) inRange(index int) bool {
	if index < 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count == 0 || index < d.count
}

// SetWorkspacePolicy marks workspaces 1..count persistent so they exist
// whether or not they hold windows.
func (d *Desktop) SetWorkspacePolicy(ctx context.Context, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: workspace count %d", desktop.ErrExternalAPI, count)
	}
	commands := make([][]string, 0, count)
	for i := 0; i < count; i++ {
		commands = append(commands, []string{"keyword", "workspace", workspaceID(i) + ",persistent:true"})
	}
	if err := d.transport.Batch(ctx, commands); err != nil {
		return fmt.Errorf("%w: set persistent workspaces: %w", desktop.ErrExternalAPI, err)
	}
	d.mu.Lock()
	d.count = count
	d.mu.Unlock()
	return nil
}

func (d *Desktop) ActivateWorkspace(ctx context.Context, index int) error {
	if !d.inRange(index) {
		d.logger.Debugf("workspace index %d out of range; not activating", index)
		return nil
	}
	if err := d.transport.Command(ctx, "dispatch", "workspace", workspaceID(index)); err != nil {
		return fmt.Errorf("%w: activate workspace: %w", desktop.ErrExternalAPI, err)
	}
	return nil
}

// SubscribeWindowCreated streams openwindow events to handler on a
// dedicated goroutine. Unsubscribe closes the event connection and waits
// for that goroutine to exit.
func (d *Desktop) SubscribeWindowCreated(ctx context.Context, handler func(desktop.WindowHandle)) (desktop.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := d.subscribe(subCtx, d.logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", desktop.ErrExternalAPI, err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Kind != "openwindow" {
				continue
			}
			win, ok := parseOpenWindow(ev.Payload)
			if !ok {
				d.logger.Debugf("ignoring malformed openwindow payload %q", ev.Payload)
				continue
			}
			handler(win)
		}
	}()
	return desktop.SubscriptionFunc(func() {
		cancel()
		<-done
	}), nil
}

// Describe looks the client up by address. When the query fails the
// class and title carried by the creation event are used.
func (d *Desktop) Describe(ctx context.Context, win desktop.WindowHandle) rules.Window {
	var fallback rules.Window
	if w, ok := win.(Window); ok {
		fallback = rules.Window{AppID: rules.NormalizeAppID(w.Class), Title: w.Title}
	}
	clients, err := ListClients(ctx, d.transport)
	if err != nil {
		d.logger.Debugf("describe %s: %v", win.ID(), err)
		return fallback
	}
	for _, cl := range clients {
		if cl.Address != win.ID() {
			continue
		}
		class := cl.Class
		if class == "" {
			class = cl.InitialClass
		}
		return rules.Window{AppID: rules.NormalizeAppID(class), Title: cl.Title}
	}
	return fallback
}

func (d *Desktop) MoveWindowToWorkspace(ctx context.Context, win desktop.WindowHandle, index int) error {
	if !d.inRange(index) {
		d.logger.Debugf("workspace index %d out of range; not moving %s", index, win.ID())
		return nil
	}
	target := workspaceID(index) + ",address:" + win.ID()
	if err := d.transport.Command(ctx, "dispatch", "movetoworkspacesilent", target); err != nil {
		return fmt.Errorf("%w: move window: %w", desktop.ErrExternalAPI, err)
	}
	return nil
}

var _ desktop.Desktop = (*Desktop)(nil)
