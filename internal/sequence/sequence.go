// Package sequence turns the workspace groups of a configuration into a
// timed playlist of workspace activations and command launches.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/schedule"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// StepKind identifies what a step does when it fires.
type StepKind string

const (
	StepActivate StepKind = "activate"
	StepSpawn    StepKind = "spawn"
	StepFocus    StepKind = "focus"
)

// Step is one entry of the startup playlist. Offset is measured from
// the moment the plan is started.
type Step struct {
	Kind      StepKind      `json:"kind" yaml:"kind"`
	Offset    time.Duration `json:"offset" yaml:"offset"`
	Workspace int           `json:"workspace" yaml:"workspace"`
	Command   string        `json:"command,omitempty" yaml:"command,omitempty"`
}

func (s Step) String() string {
	switch s.Kind {
	case StepSpawn:
		return fmt.Sprintf("spawn(%q)@%d", s.Command, s.Offset.Milliseconds())
	default:
		return fmt.Sprintf("%s(%d)@%d", s.Kind, s.Workspace, s.Offset.Milliseconds())
	}
}

// BuildStartupPlan lays the groups out one after another: each group's
// activation, then its commands, each stepDelayMs apart, and finally a
// focus on focusWorkspaceIndexAfter one further step later. Offsets
// include startupDelayMs and never decrease.
func BuildStartupPlan(cfg *config.Config) []Step {
	start := time.Duration(cfg.StartupDelayMs) * time.Millisecond
	step := time.Duration(cfg.StepDelayMs) * time.Millisecond
	plan := make([]Step, 0, len(cfg.Workspaces)+cfg.CommandCount()+1)
	var t time.Duration
	for _, group := range cfg.Workspaces {
		plan = append(plan, Step{Kind: StepActivate, Offset: start + t, Workspace: group.Index})
		t += step
		for _, cmd := range group.Commands {
			plan = append(plan, Step{Kind: StepSpawn, Offset: start + t, Workspace: group.Index, Command: cmd})
			t += step
		}
	}
	plan = append(plan, Step{Kind: StepFocus, Offset: start + t + step, Workspace: cfg.FocusWorkspaceIndexAfter})
	return plan
}

// Sequencer drives the startup playlist through a Scheduler.
type Sequencer struct {
	desktop   desktop.Desktop
	spawner   desktop.Spawner
	scheduler *schedule.Scheduler
	logger    *util.Logger
}

// New returns a Sequencer.
func New(d desktop.Desktop, spawner desktop.Spawner, scheduler *schedule.Scheduler, logger *util.Logger) *Sequencer {
	return &Sequencer{desktop: d, spawner: spawner, scheduler: scheduler, logger: logger}
}

// Start applies the workspace count immediately, then schedules every
// step of the startup plan. It returns the number of scheduled actions.
// A failing workspace policy is logged and does not stop the playlist.
func (s *Sequencer) Start(ctx context.Context, cfg *config.Config) int {
	if err := s.desktop.SetWorkspacePolicy(ctx, cfg.WorkspaceCount); err != nil {
		s.logger.Warnf("setWorkspaceCount failed: %v", err)
	} else {
		s.logger.Infof("set static workspaces = %d", cfg.WorkspaceCount)
	}
	plan := BuildStartupPlan(cfg)
	for _, step := range plan {
		s.scheduler.ScheduleNamed(step.Offset, step.String(), s.action(ctx, step))
	}
	s.logger.Debugf("scheduled %d startup actions", len(plan))
	return len(plan)
}

func (s *Sequencer) action(ctx context.Context, step Step) schedule.Action {
	switch step.Kind {
	case StepSpawn:
		return func() error {
			return s.spawner.Spawn(step.Command)
		}
	default:
		return func() error {
			if err := s.desktop.ActivateWorkspace(ctx, step.Workspace); err != nil {
				return fmt.Errorf("activateWorkspace(%d): %w", step.Workspace, err)
			}
			return nil
		}
	}
}
