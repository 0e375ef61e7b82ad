package rules

import (
	"fmt"
	"strings"

	"github.com/Maximelego/custom-workspaces/internal/config"
)

// Rule relocates matching windows to WorkspaceIndex. Empty constraint
// fields are unset.
type Rule struct {
	AppID          string
	TitleRegex     string
	WorkspaceIndex int
}

// String renders the rule for logs and metrics.
func (r Rule) String() string {
	var parts []string
	if r.AppID != "" {
		parts = append(parts, "appId="+r.AppID)
	}
	if r.TitleRegex != "" {
		parts = append(parts, fmt.Sprintf("titleRegex=%q", r.TitleRegex))
	}
	if len(parts) == 0 {
		parts = append(parts, "any")
	}
	return fmt.Sprintf("%s -> workspace %d", strings.Join(parts, " "), r.WorkspaceIndex)
}

// Window describes a window at evaluation time. AppID is empty when the
// window system could not determine one.
type Window struct {
	AppID string
	Title string
}

// BuildRules converts configured rules into matcher rules, keeping the
// declared order.
func BuildRules(cfg []config.RuleConfig) []Rule {
	out := make([]Rule, 0, len(cfg))
	for _, rc := range cfg {
		out = append(out, Rule{
			AppID:          rc.Match.AppID,
			TitleRegex:     rc.Match.TitleRegex,
			WorkspaceIndex: rc.WorkspaceIndex,
		})
	}
	return out
}

// NormalizeAppID strips the launcher-file suffix from an application id.
func NormalizeAppID(id string) string {
	return strings.TrimSuffix(id, ".desktop")
}
