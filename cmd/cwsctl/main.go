package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Maximelego/custom-workspaces/internal/control/client"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("cwsctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	socket := fs.String("socket", "", "path to the custom-workspaces control socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <command>\n", fs.Name())
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Commands:")
		fmt.Fprintln(stderr, "  status\tshow session state and counters")
		fmt.Fprintln(stderr, "  plan\t\tshow the startup playlist")
		fmt.Fprintln(stderr, "  reload\trestart the session from the config file")
		fmt.Fprintln(stderr, "  enable\tbootstrap the session if it is stopped")
		fmt.Fprintln(stderr, "  disable\tcancel pending actions and stop dynamic rules")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}
	if len(args) > 1 {
		return fmt.Errorf("%s takes no arguments", args[0])
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "status":
		return runStatus(ctx, cli, stdout)
	case "plan":
		return runPlan(ctx, cli, stdout)
	case "reload":
		return simple(cli.Reload(ctx), stdout, "Reload requested")
	case "enable":
		return simple(cli.Enable(ctx), stdout, "Session enabled")
	case "disable":
		return simple(cli.Disable(ctx), stdout, "Session disabled")
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func simple(err error, stdout io.Writer, msg string) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, msg)
	return nil
}

func runStatus(ctx context.Context, cli *client.Client, stdout io.Writer) error {
	st, err := cli.Status(ctx)
	if err != nil {
		return err
	}
	state := "stopped"
	if st.Bootstrapped {
		state = "running"
	}
	fmt.Fprintf(stdout, "Session: %s\n", state)
	if st.ConfigPath != "" {
		fmt.Fprintf(stdout, "Config: %s\n", st.ConfigPath)
	}
	fmt.Fprintf(stdout, "Dynamic rules: %t (%d rules)\n", st.DynamicRulesEnabled, st.RuleCount)
	fmt.Fprintf(stdout, "Pending actions: %d of %d scheduled\n", st.PendingActions, st.ScheduledActions)

	m := st.Metrics
	if !m.Enabled {
		return nil
	}
	fmt.Fprintf(stdout, "Actions: fired %d | failed %d | cancelled %d | spawned %d | spawn errors %d\n",
		m.Actions.Fired, m.Actions.Failed, m.Actions.Cancelled, m.Actions.Spawned, m.Actions.SpawnErrors)
	fmt.Fprintf(stdout, "Rules: matched %d | moved %d | move errors %d\n",
		m.Totals.Matched, m.Totals.Moved, m.Totals.MoveErrors)
	for _, r := range m.Rules {
		fmt.Fprintf(stdout, "  #%d %s: matched %d, moved %d, errors %d\n", r.Index, r.Rule, r.Matched, r.Moved, r.MoveErrors)
	}
	return nil
}

func runPlan(ctx context.Context, cli *client.Client, stdout io.Writer) error {
	result, err := cli.Plan(ctx)
	if err != nil {
		return err
	}
	if len(result.Steps) == 0 {
		fmt.Fprintln(stdout, "No startup actions")
		return nil
	}
	for _, st := range result.Steps {
		switch st.Kind {
		case "spawn":
			fmt.Fprintf(stdout, "%6dms  spawn     %q on workspace %d\n", st.OffsetMs, st.Command, st.Workspace)
		default:
			fmt.Fprintf(stdout, "%6dms  %-8s  workspace %d\n", st.OffsetMs, st.Kind, st.Workspace)
		}
	}
	return nil
}
