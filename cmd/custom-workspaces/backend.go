package main

import (
	"fmt"
	"strings"

	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/ipc"
	"github.com/Maximelego/custom-workspaces/internal/util"
	"github.com/Maximelego/custom-workspaces/internal/x11"
)

const (
	backendAuto     = "auto"
	backendHyprland = "hyprland"
	backendX11      = "x11"
)

// resolveBackend maps the configured backend name to a concrete one.
func resolveBackend(name string, getenv func(string) string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", backendAuto:
		if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
			return backendHyprland, nil
		}
		return backendX11, nil
	case backendHyprland:
		return backendHyprland, nil
	case backendX11:
		return backendX11, nil
	default:
		return "", fmt.Errorf("unsupported backend %q", name)
	}
}

// openBackend connects to the window system. The returned func releases
// the connection.
func openBackend(name, dispatch string, logger *util.Logger) (desktop.Desktop, func(), error) {
	switch name {
	case backendHyprland:
		strategy := ipc.DispatchStrategy(strings.ToLower(dispatch))
		d, used, err := ipc.NewDesktop(logger, strategy)
		if err != nil {
			return nil, nil, fmt.Errorf("configure dispatch strategy: %w", err)
		}
		logger.Infof("using Hyprland backend with %s dispatch", used)
		return d, func() {}, nil
	case backendX11:
		d, err := x11.Open(logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using X11 backend (GNOME policy: %t)", desktop.IsGNOME())
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", name)
	}
}
