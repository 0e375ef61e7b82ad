package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a missing, unreadable, malformed, or invalid
// configuration file.
var ErrConfiguration = errors.New("configuration error")

// Defaults applied when a field is absent from the document.
const (
	DefaultWorkspaceCount = 6
	DefaultStartupDelayMs = 7000
	DefaultStepDelayMs    = 900
)

// Config is the session configuration document.
type Config struct {
	WorkspaceCount           int              `json:"workspaceCount" yaml:"workspaceCount"`
	StartupDelayMs           int              `json:"startupDelayMs" yaml:"startupDelayMs"`
	StepDelayMs              int              `json:"stepDelayMs" yaml:"stepDelayMs"`
	FocusWorkspaceIndexAfter int              `json:"focusWorkspaceIndexAfter" yaml:"focusWorkspaceIndexAfter"`
	Workspaces               []WorkspaceGroup `json:"workspaces" yaml:"workspaces"`
	DynamicRulesEnabled      bool             `json:"dynamicRulesEnabled" yaml:"dynamicRulesEnabled"`
	DynamicRules             []RuleConfig     `json:"dynamicRules" yaml:"dynamicRules"`
}

// WorkspaceGroup lists the commands launched on one workspace, in order.
type WorkspaceGroup struct {
	Index    int      `json:"index" yaml:"index"`
	Commands []string `json:"commands" yaml:"commands"`
}

// RuleConfig moves windows matching Match to WorkspaceIndex.
type RuleConfig struct {
	Match          MatchConfig `json:"match" yaml:"match"`
	WorkspaceIndex int         `json:"workspaceIndex" yaml:"workspaceIndex"`
}

// MatchConfig holds the optional rule constraints. Empty means unset.
type MatchConfig struct {
	AppID      string `json:"appId,omitempty" yaml:"appId,omitempty"`
	TitleRegex string `json:"titleRegex,omitempty" yaml:"titleRegex,omitempty"`
}

// rawConfig distinguishes absent fields from explicit zeros so defaults
// only fill what the document leaves out.
type rawConfig struct {
	WorkspaceCount           *int       `json:"workspaceCount" yaml:"workspaceCount"`
	StartupDelayMs           *int       `json:"startupDelayMs" yaml:"startupDelayMs"`
	StepDelayMs              *int       `json:"stepDelayMs" yaml:"stepDelayMs"`
	FocusWorkspaceIndexAfter *int       `json:"focusWorkspaceIndexAfter" yaml:"focusWorkspaceIndexAfter"`
	Workspaces               []rawGroup `json:"workspaces" yaml:"workspaces"`
	DynamicRulesEnabled      *bool      `json:"dynamicRulesEnabled" yaml:"dynamicRulesEnabled"`
	DynamicRules             []rawRule  `json:"dynamicRules" yaml:"dynamicRules"`
}

type rawGroup struct {
	Index    *int     `json:"index" yaml:"index"`
	Commands []string `json:"commands" yaml:"commands"`
}

type rawRule struct {
	Match          *MatchConfig `json:"match" yaml:"match"`
	WorkspaceIndex *int         `json:"workspaceIndex" yaml:"workspaceIndex"`
}

// UnmarshalJSON decodes the document and fills defaults for absent fields.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = raw.resolve()
	return nil
}

// UnmarshalYAML decodes the document and fills defaults for absent fields.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = raw.resolve()
	return nil
}

func (r rawConfig) resolve() Config {
	cfg := Config{
		WorkspaceCount:           intOr(r.WorkspaceCount, DefaultWorkspaceCount),
		StartupDelayMs:           intOr(r.StartupDelayMs, DefaultStartupDelayMs),
		StepDelayMs:              intOr(r.StepDelayMs, DefaultStepDelayMs),
		FocusWorkspaceIndexAfter: intOr(r.FocusWorkspaceIndexAfter, 0),
	}
	if r.DynamicRulesEnabled != nil {
		cfg.DynamicRulesEnabled = *r.DynamicRulesEnabled
	}
	for _, g := range r.Workspaces {
		cfg.Workspaces = append(cfg.Workspaces, WorkspaceGroup{
			Index:    intOr(g.Index, 0),
			Commands: g.Commands,
		})
	}
	for _, rule := range r.DynamicRules {
		rc := RuleConfig{WorkspaceIndex: intOr(rule.WorkspaceIndex, 0)}
		if rule.Match != nil {
			rc.Match = *rule.Match
		}
		cfg.DynamicRules = append(cfg.DynamicRules, rc)
	}
	return cfg
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Format selects the document decoder.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForPath picks YAML for .yaml/.yml files and JSON (with comments
// allowed) for everything else.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, format Format) (*Config, error) {
	cfg, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a configuration document and fills defaults without
// validating it.
func Decode(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode config: %w", ErrConfiguration, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("%w: decode config: %w", ErrConfiguration, err)
		}
	}
	return &cfg, nil
}

// Load reads, decodes, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}
	return Parse(data, FormatForPath(path))
}

// LintFile decodes the file at path and returns every validation issue.
// The error is non-nil only when the file cannot be read or decoded.
func LintFile(path string) ([]LintError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
	}
	cfg, err := Decode(data, FormatForPath(path))
	if err != nil {
		return nil, err
	}
	return cfg.Lint(), nil
}

// DefaultPath returns the per-user configuration location.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "custom-workspaces", "config.json")
}

// LintError describes a single validation issue.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Lint returns every validation issue in document order. Workspace
// indices are not checked against workspaceCount; the window system
// decides what an out-of-range index means.
func (c *Config) Lint() []LintError {
	var errs []LintError
	add := func(path, format string, args ...any) {
		errs = append(errs, LintError{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	if c.WorkspaceCount < 1 {
		add("workspaceCount", "must be at least 1, got %d", c.WorkspaceCount)
	}
	if c.StartupDelayMs < 0 {
		add("startupDelayMs", "cannot be negative, got %d", c.StartupDelayMs)
	}
	if c.StepDelayMs < 0 {
		add("stepDelayMs", "cannot be negative, got %d", c.StepDelayMs)
	}
	if c.FocusWorkspaceIndexAfter < 0 {
		add("focusWorkspaceIndexAfter", "cannot be negative, got %d", c.FocusWorkspaceIndexAfter)
	}
	for i, g := range c.Workspaces {
		if g.Index < 0 {
			add(fmt.Sprintf("workspaces[%d].index", i), "cannot be negative, got %d", g.Index)
		}
	}
	for i, r := range c.DynamicRules {
		if r.WorkspaceIndex < 0 {
			add(fmt.Sprintf("dynamicRules[%d].workspaceIndex", i), "cannot be negative, got %d", r.WorkspaceIndex)
		}
	}
	return errs
}

// Validate reports the first lint issue as a configuration error.
func (c *Config) Validate() error {
	if errs := c.Lint(); len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errs[0])
	}
	return nil
}

// CommandCount returns the number of commands across all groups.
func (c *Config) CommandCount() int {
	n := 0
	for _, g := range c.Workspaces {
		n += len(g.Commands)
	}
	return n
}
