// Package desktop defines the narrow boundary between the session core
// and the window system, plus helpers shared by the backends.
package desktop

import (
	"context"
	"errors"

	"github.com/Maximelego/custom-workspaces/internal/rules"
)

// ErrExternalAPI marks a failed call into the window system or OS.
var ErrExternalAPI = errors.New("external api error")

// WindowHandle is an opaque reference to a window owned by a backend.
type WindowHandle interface {
	ID() string
}

// Subscription ends an event subscription.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Desktop is the window-system surface the session needs. Workspace
// indices are zero-based; an index that does not resolve to an existing
// workspace is a no-op, not an error.
type Desktop interface {
	// SetWorkspacePolicy turns off dynamic workspaces and fixes the
	// workspace count.
	SetWorkspacePolicy(ctx context.Context, count int) error
	// ActivateWorkspace switches focus to the workspace at index.
	ActivateWorkspace(ctx context.Context, index int) error
	// SubscribeWindowCreated calls handler for every new window until
	// the subscription is cancelled. Handler may run on any goroutine.
	SubscribeWindowCreated(ctx context.Context, handler func(WindowHandle)) (Subscription, error)
	// Describe returns the window's app id and title. It never fails;
	// unknown fields are left empty.
	Describe(ctx context.Context, win WindowHandle) rules.Window
	// MoveWindowToWorkspace reassigns win to the workspace at index.
	MoveWindowToWorkspace(ctx context.Context, win WindowHandle, index int) error
}

// Spawner launches command lines as detached processes.
type Spawner interface {
	Spawn(commandLine string) error
}
