package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/ipc"
	"github.com/Maximelego/custom-workspaces/internal/rules"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// smoke loads a config and reports where the dynamic rules would send the
// windows Hyprland already has open. Nothing is moved.
func main() {
	cfgPath := pflag.String("config", config.DefaultPath(), "path to the session config")
	logLevel := pflag.String("log-level", "info", "log level (debug|info|warn|error)")
	timeout := pflag.Duration("timeout", 3*time.Second, "compositor query timeout")
	pflag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("Loaded config from %s\n", *cfgPath)
	fmt.Println("\n=== Configuration ===")
	if err := marshalYAML(os.Stdout, cfg); err != nil {
		logger.Warnf("failed to print config: %v", err)
	}

	if err := report(ctx, os.Stdout, ipc.NewClient(), cfg, rules.NewMatcher(logger)); err != nil {
		exitErr(err)
	}
}

// report prints one line per open window with the rule that would claim it.
func report(ctx context.Context, w io.Writer, t ipc.Transport, cfg *config.Config, matcher *rules.Matcher) error {
	clients, err := ipc.ListClients(ctx, t)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	ruleSet := rules.BuildRules(cfg.DynamicRules)

	fmt.Fprintln(w, "\n=== Dynamic Rule Preview ===")
	if !cfg.DynamicRulesEnabled {
		fmt.Fprintln(w, "(dynamic rules are disabled in this config; showing what they would do)")
	}
	if len(clients) == 0 {
		fmt.Fprintln(w, "No open windows.")
		return nil
	}
	for _, cl := range clients {
		class := cl.Class
		if class == "" {
			class = cl.InitialClass
		}
		win := rules.Window{AppID: rules.NormalizeAppID(class), Title: cl.Title}
		label := fmt.Sprintf("%s %s %q", cl.Address, displayAppID(win.AppID), win.Title)
		rule, idx, ok := matcher.FirstMatch(win, ruleSet)
		if !ok {
			fmt.Fprintf(w, "%s -> no match\n", label)
			continue
		}
		fmt.Fprintf(w, "%s -> rule #%d (%s), now on workspace index %d\n", label, idx, rule, cl.WorkspaceID-1)
	}
	return nil
}

func displayAppID(id string) string {
	if strings.TrimSpace(id) == "" {
		return "(none)"
	}
	return id
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func marshalYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
