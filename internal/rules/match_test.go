package rules

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Maximelego/custom-workspaces/internal/util"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		window Window
		rule   Rule
		want   bool
	}{
		{
			name:   "empty rule matches anything",
			window: Window{AppID: "org.gnome.Nautilus", Title: "Files"},
			rule:   Rule{},
			want:   true,
		},
		{
			name:   "empty rule matches window without app id",
			window: Window{},
			rule:   Rule{WorkspaceIndex: 3},
			want:   true,
		},
		{
			name:   "app id after suffix strip",
			window: Window{AppID: NormalizeAppID("firefox.desktop")},
			rule:   Rule{AppID: "firefox"},
			want:   true,
		},
		{
			name:   "missing app id",
			window: Window{Title: "firefox"},
			rule:   Rule{AppID: "firefox"},
			want:   false,
		},
		{
			name:   "app id is case sensitive",
			window: Window{AppID: "Firefox"},
			rule:   Rule{AppID: "firefox"},
			want:   false,
		},
		{
			name:   "title regex is a case-insensitive substring match",
			window: Window{Title: "my Terminal window"},
			rule:   Rule{TitleRegex: "terminal"},
			want:   true,
		},
		{
			name:   "anchored title regex is honoured",
			window: Window{Title: "Terminal - zsh"},
			rule:   Rule{TitleRegex: "^terminal"},
			want:   true,
		},
		{
			name:   "title regex mismatch",
			window: Window{Title: "Editor"},
			rule:   Rule{TitleRegex: "^Terminal"},
			want:   false,
		},
		{
			name:   "both constraints must hold",
			window: Window{AppID: "kitty", Title: "htop"},
			rule:   Rule{AppID: "kitty", TitleRegex: "vim"},
			want:   false,
		},
		{
			name:   "both constraints hold",
			window: Window{AppID: "kitty", Title: "nvim main.go"},
			rule:   Rule{AppID: "kitty", TitleRegex: "vim"},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.window, tt.rule)
			if err != nil {
				t.Fatalf("Match returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Match(%+v, %s) = %v, want %v", tt.window, tt.rule, got, tt.want)
			}
		})
	}
}

func TestMatchInvalidPatternIsNoMatch(t *testing.T) {
	ok, err := Match(Window{Title: "anything"}, Rule{TitleRegex: "(unclosed"})
	if ok {
		t.Fatalf("invalid pattern must not match")
	}
	if !errors.Is(err, ErrRuleCompile) {
		t.Fatalf("expected ErrRuleCompile, got %v", err)
	}
	var compileErr *CompileError
	if !errors.As(err, &compileErr) || compileErr.Pattern != "(unclosed" {
		t.Fatalf("expected CompileError for pattern, got %#v", err)
	}
}

func TestMatchAppIDShortCircuitsBadPattern(t *testing.T) {
	ok, err := Match(Window{AppID: "kitty"}, Rule{AppID: "firefox", TitleRegex: "(bad"})
	if ok || err != nil {
		t.Fatalf("expected silent mismatch before pattern compile, got %v %v", ok, err)
	}
}

func TestMatcherLogsBadPatternOnce(t *testing.T) {
	var logs bytes.Buffer
	m := NewMatcher(util.NewLoggerWithWriter(util.LevelDebug, &logs))
	rule := Rule{TitleRegex: "[z-a]"}
	for i := 0; i < 3; i++ {
		if m.Matches(Window{Title: "x"}, rule) {
			t.Fatalf("invalid pattern matched")
		}
	}
	if n := strings.Count(logs.String(), "rule ignored"); n != 1 {
		t.Fatalf("expected a single warning, got %d: %s", n, logs.String())
	}
}

func TestFirstMatchPicksDeclaredOrder(t *testing.T) {
	m := NewMatcher(nil)
	rules := []Rule{
		{TitleRegex: "(broken", WorkspaceIndex: 9},
		{AppID: "slack", WorkspaceIndex: 1},
		{TitleRegex: "standup", WorkspaceIndex: 2},
		{WorkspaceIndex: 3},
	}
	got, idx, ok := m.FirstMatch(Window{AppID: "slack", Title: "Daily Standup"}, rules)
	if !ok || idx != 1 || got.WorkspaceIndex != 1 {
		t.Fatalf("FirstMatch = %+v, %d, %v; want rule 1", got, idx, ok)
	}
	got, idx, ok = m.FirstMatch(Window{AppID: "zoom", Title: "Standup"}, rules)
	if !ok || idx != 2 || got.WorkspaceIndex != 2 {
		t.Fatalf("FirstMatch = %+v, %d, %v; want rule 2", got, idx, ok)
	}
	_, idx, ok = m.FirstMatch(Window{}, rules[:3])
	if ok || idx != -1 {
		t.Fatalf("expected no match, got index %d", idx)
	}
}

func TestNormalizeAppID(t *testing.T) {
	cases := map[string]string{
		"firefox.desktop":            "firefox",
		"org.gnome.Terminal":         "org.gnome.Terminal",
		"code.desktop.desktop":       "code.desktop",
		"":                           "",
		"org.gnome.Nautilus.desktop": "org.gnome.Nautilus",
	}
	for in, want := range cases {
		if got := NormalizeAppID(in); got != want {
			t.Fatalf("NormalizeAppID(%q) = %q, want %q", in, got, want)
		}
	}
}
