// Package dispatch moves newly created windows to the workspace named by
// the first matching rule.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/schedule"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// DebounceDelay is how long a new window is left alone before its
// metadata is read. Many toolkits set the title after mapping.
const DebounceDelay = 250 * time.Millisecond

// Dispatcher subscribes to window creation and routes windows by rule.
type Dispatcher struct {
	desktop   desktop.Desktop
	scheduler *schedule.Scheduler
	matcher   *rules.Matcher
	logger    *util.Logger
	metrics   *metrics.Collector

	mu    sync.Mutex
	sub   desktop.Subscription
	rules []rules.Rule
}

// New returns a disabled Dispatcher.
func New(d desktop.Desktop, scheduler *schedule.Scheduler, logger *util.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		desktop:   d,
		scheduler: scheduler,
		matcher:   rules.NewMatcher(logger),
		logger:    logger,
		metrics:   collector,
	}
}

// Enable subscribes to window creation with the given rules. Enabling an
// already enabled dispatcher does nothing.
func (d *Dispatcher) Enable(ctx context.Context, rs []rules.Rule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		return nil
	}
	active := append([]rules.Rule(nil), rs...)
	sub, err := d.desktop.SubscribeWindowCreated(ctx, func(win desktop.WindowHandle) {
		d.scheduler.ScheduleNamed(DebounceDelay, "evaluate "+win.ID(), func() error {
			return d.evaluate(ctx, win, active)
		})
	})
	if err != nil {
		return fmt.Errorf("subscribe window-created: %w", err)
	}
	d.sub = sub
	d.rules = active
	d.logger.Infof("dynamic rules enabled (%d rules)", len(active))
	return nil
}

// Disable unsubscribes. Evaluations already scheduled are left to the
// scheduler. Disabling twice is harmless.
func (d *Dispatcher) Disable() {
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.rules = nil
	d.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Unsubscribe()
	d.logger.Infof("dynamic rules disabled")
}

// Enabled reports whether the dispatcher holds a subscription.
func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sub != nil
}

// RuleCount reports how many rules are active.
func (d *Dispatcher) RuleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rules)
}

func (d *Dispatcher) evaluate(ctx context.Context, win desktop.WindowHandle, rs []rules.Rule) error {
	info := d.desktop.Describe(ctx, win)
	rule, idx, ok := d.matcher.FirstMatch(info, rs)
	if !ok {
		d.logger.Debugf("window %s (appId=%q title=%q) matched no rule", win.ID(), info.AppID, info.Title)
		return nil
	}
	label := rule.String()
	d.metrics.RecordMatch(idx, label)
	err := d.desktop.MoveWindowToWorkspace(ctx, win, rule.WorkspaceIndex)
	d.metrics.RecordMove(idx, label, err)
	if err != nil {
		return fmt.Errorf("move window %s to workspace %d: %w", win.ID(), rule.WorkspaceIndex, err)
	}
	d.logger.Infof("moved window %s (appId=%q title=%q) to workspace %d", win.ID(), info.AppID, info.Title, rule.WorkspaceIndex)
	return nil
}
