package desktop

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// GSettings applies the GNOME workspace policy through the gsettings CLI.
type GSettings struct {
	Binary string
}

// NewGSettings returns a GSettings using the binary on PATH.
func NewGSettings() *GSettings {
	return &GSettings{Binary: "gsettings"}
}

// IsGNOME reports whether the current session is a GNOME session.
func IsGNOME() bool {
	for _, name := range strings.Split(os.Getenv("XDG_CURRENT_DESKTOP"), ":") {
		if strings.EqualFold(name, "gnome") {
			return true
		}
	}
	return false
}

// SetWorkspacePolicy disables mutter's dynamic workspaces and fixes the
// number of workspaces.
func (g *GSettings) SetWorkspacePolicy(ctx context.Context, count int) error {
	if err := g.run(ctx, "set", "org.gnome.mutter", "dynamic-workspaces", "false"); err != nil {
		return err
	}
	return g.run(ctx, "set", "org.gnome.desktop.wm.preferences", "num-workspaces", strconv.Itoa(count))
}

func (g *GSettings) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, g.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: gsettings %s: %v: %s", ErrExternalAPI, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
