package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Maximelego/custom-workspaces/internal/config"
)

func TestBuildRulesKeepsOrder(t *testing.T) {
	cfg := []config.RuleConfig{
		{Match: config.MatchConfig{AppID: "firefox"}, WorkspaceIndex: 1},
		{Match: config.MatchConfig{TitleRegex: "^Terminal"}, WorkspaceIndex: 2},
		{WorkspaceIndex: 0},
	}
	want := []Rule{
		{AppID: "firefox", WorkspaceIndex: 1},
		{TitleRegex: "^Terminal", WorkspaceIndex: 2},
		{},
	}
	if diff := cmp.Diff(want, BuildRules(cfg)); diff != "" {
		t.Fatalf("BuildRules mismatch (-want +got):\n%s", diff)
	}
}

func TestRuleString(t *testing.T) {
	if got := (Rule{}).String(); got != "any -> workspace 0" {
		t.Fatalf("unexpected string: %q", got)
	}
	got := Rule{AppID: "kitty", TitleRegex: "vim", WorkspaceIndex: 2}.String()
	if got != `appId=kitty titleRegex="vim" -> workspace 2` {
		t.Fatalf("unexpected string: %q", got)
	}
}
