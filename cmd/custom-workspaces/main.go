package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/sequence"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		exitErr(err)
	}
	if err := newRootCommand(settings).ExecuteContext(context.Background()); err != nil {
		exitErr(err)
	}
}

func newRootCommand(settings config.Settings) *cobra.Command {
	opts := daemonOptions{Settings: settings}
	root := &cobra.Command{
		Use:           "custom-workspaces",
		Short:         "Arrange workspaces, launch startup commands, and route new windows",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", settings.ConfigPath, "path to the session config (JSON, JSONC or YAML)")
	flags.StringVar(&opts.LogLevel, "log-level", settings.LogLevel, "log level (debug|info|warn|error)")

	local := root.Flags()
	local.StringVar(&opts.Backend, "backend", settings.Backend, "window system backend (auto|hyprland|x11)")
	local.BoolVar(&opts.DryRun, "dry-run", settings.DryRun, "log workspace changes and launches instead of performing them")
	local.BoolVar(&opts.Watch, "watch", settings.Watch, "reload the session when the config file changes")
	local.StringVar(&opts.ControlSocket, "socket", settings.ControlSocket, "control socket path (default $XDG_RUNTIME_DIR/custom-workspaces/control.sock)")
	local.StringVar(&opts.Dispatch, "dispatch", "socket", "Hyprland dispatch strategy (socket|hyprctl)")

	root.AddCommand(newCheckCommand(&opts), newPlanCommand(&opts))
	return root
}

func newCheckCommand(opts *daemonOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the session config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(opts.ConfigPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newPlanCommand(opts *daemonOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the startup playlist the config produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(opts.ConfigPath, cmd.OutOrStdout())
		},
	}
}

func runCheck(path string, stdout, stderr io.Writer) error {
	lintErrs, err := config.LintFile(path)
	if err != nil {
		return err
	}
	if len(lintErrs) == 0 {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}
	fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(lintErrs))
	for _, lintErr := range lintErrs {
		fmt.Fprintf(stderr, "- %s\n", lintErr.Error())
	}
	return fmt.Errorf("configuration validation failed")
}

type planDocument struct {
	WorkspaceCount int             `yaml:"workspaceCount"`
	Steps          []sequence.Step `yaml:"steps"`
	DynamicRules   []string        `yaml:"dynamicRules,omitempty"`
}

func runPlan(path string, stdout io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	doc := planDocument{
		WorkspaceCount: cfg.WorkspaceCount,
		Steps:          sequence.BuildStartupPlan(cfg),
	}
	if cfg.DynamicRulesEnabled {
		for _, r := range rules.BuildRules(cfg.DynamicRules) {
			doc.DynamicRules = append(doc.DynamicRules, r.String())
		}
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
