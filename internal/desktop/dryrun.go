package desktop

import (
	"context"

	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// DryRun logs mutating calls instead of performing them. Event
// subscription and Describe pass through so rules can still be
// exercised against real windows.
type DryRun struct {
	Desktop Desktop
	Logger  *util.Logger
}

func (d DryRun) SetWorkspacePolicy(_ context.Context, count int) error {
	d.Logger.Infof("[dry-run] set static workspaces = %d", count)
	return nil
}

func (d DryRun) ActivateWorkspace(_ context.Context, index int) error {
	d.Logger.Infof("[dry-run] activate workspace %d", index)
	return nil
}

func (d DryRun) SubscribeWindowCreated(ctx context.Context, handler func(WindowHandle)) (Subscription, error) {
	return d.Desktop.SubscribeWindowCreated(ctx, handler)
}

func (d DryRun) Describe(ctx context.Context, win WindowHandle) rules.Window {
	return d.Desktop.Describe(ctx, win)
}

func (d DryRun) MoveWindowToWorkspace(_ context.Context, win WindowHandle, index int) error {
	d.Logger.Infof("[dry-run] move window %s to workspace %d", win.ID(), index)
	return nil
}

// DryRunSpawner logs command lines instead of launching them.
type DryRunSpawner struct {
	Logger *util.Logger
}

func (s DryRunSpawner) Spawn(commandLine string) error {
	s.Logger.Infof("[dry-run] spawn: %s", commandLine)
	return nil
}

var _ Desktop = DryRun{}
var _ Spawner = DryRunSpawner{}
