// Package session owns the enable/disable lifecycle that ties the
// sequencer, the rule dispatcher and the scheduler together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/dispatch"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/schedule"
	"github.com/Maximelego/custom-workspaces/internal/sequence"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// Loader returns the configuration for a new session.
type Loader func() (*config.Config, error)

// Options configures a Controller.
type Options struct {
	Loader     Loader
	ConfigPath string
	Desktop    desktop.Desktop
	Spawner    desktop.Spawner
	Scheduler  *schedule.Scheduler
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// Status is a point-in-time view of the session.
type Status struct {
	Bootstrapped        bool             `json:"bootstrapped"`
	DynamicRulesEnabled bool             `json:"dynamicRulesEnabled"`
	RuleCount           int              `json:"ruleCount"`
	PendingActions      int              `json:"pendingActions"`
	ScheduledActions    int              `json:"scheduledActions"`
	ConfigPath          string           `json:"configPath,omitempty"`
	Metrics             metrics.Snapshot `json:"metrics"`
}

// Controller is the top-level session lifecycle. All state lives on the
// instance.
type Controller struct {
	loader     Loader
	configPath string
	desktop    desktop.Desktop
	scheduler  *schedule.Scheduler
	sequencer  *sequence.Sequencer
	dispatcher *dispatch.Dispatcher
	logger     *util.Logger
	metrics    *metrics.Collector

	mu           sync.Mutex
	bootstrapped bool
	cfg          *config.Config
	scheduled    int
}

// New wires a Controller from opts. Loader, Desktop, Spawner and
// Scheduler are required.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Loader == nil:
		return nil, errors.New("session: loader is required")
	case opts.Desktop == nil:
		return nil, errors.New("session: desktop is required")
	case opts.Spawner == nil:
		return nil, errors.New("session: spawner is required")
	case opts.Scheduler == nil:
		return nil, errors.New("session: scheduler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(util.LevelInfo)
	}
	return &Controller{
		loader:     opts.Loader,
		configPath: opts.ConfigPath,
		desktop:    opts.Desktop,
		scheduler:  opts.Scheduler,
		sequencer:  sequence.New(opts.Desktop, opts.Spawner, opts.Scheduler, logger.Named("sequence")),
		dispatcher: dispatch.New(opts.Desktop, opts.Scheduler, logger.Named("rules"), opts.Metrics),
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Enable bootstraps the session: it loads the configuration, turns on
// dynamic rules when configured, and schedules the startup playlist. A
// second call before Disable is a no-op. A configuration error is
// returned with no side effects.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bootstrapped {
		c.logger.Infof("already bootstrapped; ignoring enable")
		return nil
	}
	cfg, err := c.load()
	if err != nil {
		c.logger.Errorf("cannot load config: %v", err)
		return err
	}
	c.bootstrapLocked(ctx, cfg)
	return nil
}

// load runs the loader and reports every failure as a configuration error.
func (c *Controller) load() (*config.Config, error) {
	cfg, err := c.loader()
	if err != nil {
		if !errors.Is(err, config.ErrConfiguration) {
			err = fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: loader returned no configuration", config.ErrConfiguration)
	}
	return cfg, nil
}

func (c *Controller) bootstrapLocked(ctx context.Context, cfg *config.Config) {
	if cfg.DynamicRulesEnabled && len(cfg.DynamicRules) > 0 {
		if err := c.dispatcher.Enable(ctx, rules.BuildRules(cfg.DynamicRules)); err != nil {
			c.logger.Warnf("dynamic rules unavailable: %v", err)
		}
	}
	c.scheduled = c.sequencer.Start(ctx, cfg)
	c.cfg = cfg
	c.bootstrapped = true
	c.logger.Infof("session enabled: %d workspaces, %d startup actions, dynamic rules %t",
		cfg.WorkspaceCount, c.scheduled, c.dispatcher.Enabled())
}

// Disable unsubscribes from window events, cancels every pending action
// and resets the bootstrapped flag. It is safe to call at any time.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked()
}

func (c *Controller) disableLocked() {
	c.dispatcher.Disable()
	n := c.scheduler.CancelAll()
	wasBootstrapped := c.bootstrapped
	c.bootstrapped = false
	c.cfg = nil
	c.scheduled = 0
	if wasBootstrapped || n > 0 {
		c.logger.Infof("session disabled; cancelled %d pending actions", n)
	}
}

// Reload loads the configuration first and only then tears the session
// down and bootstraps it again. When the new configuration does not load
// the running session is kept as it is.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, err := c.load()
	if err != nil {
		c.logger.Errorf("reload rejected; keeping the running session: %v", err)
		return err
	}
	c.disableLocked()
	c.bootstrapLocked(ctx, cfg)
	return nil
}

// Status reports the session state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Bootstrapped:        c.bootstrapped,
		DynamicRulesEnabled: c.dispatcher.Enabled(),
		RuleCount:           c.dispatcher.RuleCount(),
		PendingActions:      c.scheduler.Pending(),
		ScheduledActions:    c.scheduled,
		ConfigPath:          c.configPath,
		Metrics:             c.metrics.Snapshot(),
	}
}

// Config returns the configuration of the running session, or nil.
func (c *Controller) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Plan returns the startup playlist of the running session, or of the
// configuration on disk when the session is not bootstrapped.
func (c *Controller) Plan() ([]sequence.Step, error) {
	if cfg := c.Config(); cfg != nil {
		return sequence.BuildStartupPlan(cfg), nil
	}
	cfg, err := c.loader()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: loader returned no configuration", config.ErrConfiguration)
	}
	return sequence.BuildStartupPlan(cfg), nil
}
