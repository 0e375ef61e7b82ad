// Package x11 implements the desktop boundary for EWMH window managers,
// including GNOME on Xorg.
package x11

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"go.uber.org/multierr"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Window is an X11 client window.
type Window xproto.Window

// ID renders the window id in hex, as xprop and wmctrl do.
func (w Window) ID() string { return "0x" + strconv.FormatUint(uint64(w), 16) }

// Policy applies a desktop-specific workspace policy before the EWMH
// request is sent.
type Policy interface {
	SetWorkspacePolicy(ctx context.Context, count int) error
}

// Desktop drives an EWMH-compliant window manager.
type Desktop struct {
	display display
	policy  Policy
	logger  *util.Logger
}

// Open connects to the X server named by $DISPLAY. Under GNOME the
// gsettings workspace policy is applied as well.
func Open(logger *util.Logger) (*Desktop, error) {
	d, err := dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", desktop.ErrExternalAPI, err)
	}
	var policy Policy
	if desktop.IsGNOME() {
		policy = desktop.NewGSettings()
	}
	return newDesktop(d, policy, logger), nil
}

func newDesktop(d display, policy Policy, logger *util.Logger) *Desktop {
	return &Desktop{display: d, policy: policy, logger: logger}
}

// Close releases the X connection.
func (d *Desktop) Close() {
	d.display.Close()
}

func (d *Desktop) SetWorkspacePolicy(ctx context.Context, count int) error {
	var err error
	if d.policy != nil {
		err = multierr.Append(err, d.policy.SetWorkspacePolicy(ctx, count))
	}
	if reqErr := d.display.SetNumberOfDesktops(count); reqErr != nil {
		err = multierr.Append(err, fmt.Errorf("%w: _NET_NUMBER_OF_DESKTOPS: %w", desktop.ErrExternalAPI, reqErr))
	}
	return err
}

// resolve reports whether index names an existing desktop.
func (d *Desktop) resolve(index int) (bool, error) {
	if index < 0 {
		return false, nil
	}
	n, err := d.display.NumberOfDesktops()
	if err != nil {
		return false, fmt.Errorf("%w: _NET_NUMBER_OF_DESKTOPS: %w", desktop.ErrExternalAPI, err)
	}
	return index < n, nil
}

func (d *Desktop) ActivateWorkspace(_ context.Context, index int) error {
	ok, err := d.resolve(index)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Debugf("workspace index %d out of range; not activating", index)
		return nil
	}
	if err := d.display.SetCurrentDesktop(index); err != nil {
		return fmt.Errorf("%w: _NET_CURRENT_DESKTOP: %w", desktop.ErrExternalAPI, err)
	}
	return nil
}

// SubscribeWindowCreated reports windows that appear in _NET_CLIENT_LIST
// after the call. Windows already mapped are not reported.
func (d *Desktop) SubscribeWindowCreated(_ context.Context, handler func(desktop.WindowHandle)) (desktop.Subscription, error) {
	initial, err := d.display.ClientList()
	if err != nil {
		return nil, fmt.Errorf("%w: _NET_CLIENT_LIST: %w", desktop.ErrExternalAPI, err)
	}
	tracker := newClientTracker(initial)
	stop, err := d.display.WatchClientList(func() {
		current, err := d.display.ClientList()
		if err != nil {
			d.logger.Debugf("read _NET_CLIENT_LIST: %v", err)
			return
		}
		for _, win := range tracker.update(current) {
			handler(Window(win))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", desktop.ErrExternalAPI, err)
	}
	return desktop.SubscriptionFunc(stop), nil
}

func (d *Desktop) Describe(_ context.Context, win desktop.WindowHandle) rules.Window {
	w, ok := win.(Window)
	if !ok {
		return rules.Window{}
	}
	return rules.Window{
		AppID: d.display.AppID(xproto.Window(w)),
		Title: d.display.Title(xproto.Window(w)),
	}
}

func (d *Desktop) MoveWindowToWorkspace(_ context.Context, win desktop.WindowHandle, index int) error {
	w, isX := win.(Window)
	if !isX {
		return fmt.Errorf("%w: foreign window handle %s", desktop.ErrExternalAPI, win.ID())
	}
	ok, err := d.resolve(index)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Debugf("workspace index %d out of range; not moving %s", index, win.ID())
		return nil
	}
	if err := d.display.SetWindowDesktop(xproto.Window(w), index); err != nil {
		return fmt.Errorf("%w: _NET_WM_DESKTOP: %w", desktop.ErrExternalAPI, err)
	}
	return nil
}

// clientTracker diffs successive client lists.
type clientTracker struct {
	mu    sync.Mutex
	known map[xproto.Window]struct{}
}

func newClientTracker(initial []xproto.Window) *clientTracker {
	t := &clientTracker{known: make(map[xproto.Window]struct{}, len(initial))}
	for _, w := range initial {
		t.known[w] = struct{}{}
	}
	return t
}

// update records current and returns the windows not seen before, in
// list order. Windows that disappeared are forgotten.
func (t *clientTracker) update(current []xproto.Window) []xproto.Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[xproto.Window]struct{}, len(current))
	var added []xproto.Window
	for _, w := range current {
		if _, dup := next[w]; dup {
			continue
		}
		next[w] = struct{}{}
		if _, seen := t.known[w]; !seen {
			added = append(added, w)
		}
	}
	t.known = next
	return added
}

var _ desktop.Desktop = (*Desktop)(nil)
