// Package desktoptest provides an in-memory window system for tests.
package desktoptest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/rules"
)

// Window is a WindowHandle identified by a string.
type Window string

func (w Window) ID() string { return string(w) }

// Call records one side effect.
type Call struct {
	Op      string
	Index   int
	Window  string
	Command string
	At      time.Time
}

// Fake implements desktop.Desktop and desktop.Spawner, recording every
// side effect in order.
type Fake struct {
	// Now stamps recorded calls when set.
	Now func() time.Time
	// Workspaces bounds valid indices for moves and activations when
	// non-zero; out-of-range requests are recorded as no-ops.
	Workspaces int

	ActivateErr  error
	MoveErr      error
	PolicyErr    error
	SpawnErr     error
	SubscribeErr error

	mu            sync.Mutex
	calls         []Call
	windows       map[string]rules.Window
	handler       func(desktop.WindowHandle)
	subscriptions int
	unsubscribes  int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{windows: make(map[string]rules.Window)}
}

// AddWindow registers metadata returned by Describe.
func (f *Fake) AddWindow(id string, w rules.Window) Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windows == nil {
		f.windows = make(map[string]rules.Window)
	}
	f.windows[id] = w
	return Window(id)
}

// Emit delivers a window-created event to the active subscriber, if any.
func (f *Fake) Emit(id string) bool {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(Window(id))
	return true
}

// Calls returns a copy of the recorded side effects.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Subscribed reports whether a window-created handler is installed.
func (f *Fake) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// SubscriptionCounts reports how many times subscribe and unsubscribe ran.
func (f *Fake) SubscriptionCounts() (subscribed, unsubscribed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscriptions, f.unsubscribes
}

func (f *Fake) record(c Call) {
	if f.Now != nil {
		c.At = f.Now()
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *Fake) SetWorkspacePolicy(_ context.Context, count int) error {
	f.record(Call{Op: "policy", Index: count})
	return f.PolicyErr
}

func (f *Fake) ActivateWorkspace(_ context.Context, index int) error {
	if f.Workspaces > 0 && index >= f.Workspaces {
		return nil
	}
	f.record(Call{Op: "activate", Index: index})
	return f.ActivateErr
}

func (f *Fake) SubscribeWindowCreated(_ context.Context, handler func(desktop.WindowHandle)) (desktop.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	f.mu.Lock()
	f.handler = handler
	f.subscriptions++
	f.mu.Unlock()
	return desktop.SubscriptionFunc(func() {
		f.mu.Lock()
		f.handler = nil
		f.unsubscribes++
		f.mu.Unlock()
	}), nil
}

func (f *Fake) Describe(_ context.Context, win desktop.WindowHandle) rules.Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[win.ID()]
}

func (f *Fake) MoveWindowToWorkspace(_ context.Context, win desktop.WindowHandle, index int) error {
	if f.Workspaces > 0 && index >= f.Workspaces {
		return nil
	}
	f.record(Call{Op: "move", Index: index, Window: win.ID()})
	return f.MoveErr
}

func (f *Fake) Spawn(commandLine string) error {
	f.record(Call{Op: "spawn", Command: commandLine})
	return f.SpawnErr
}

var _ desktop.Desktop = (*Fake)(nil)
var _ desktop.Spawner = (*Fake)(nil)
