package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings controls the daemon itself, as opposed to the session it runs.
// Command-line flags override these.
type Settings struct {
	ConfigPath    string `env:"CUSTOM_WORKSPACES_CONFIG"`
	LogLevel      string `env:"CUSTOM_WORKSPACES_LOG_LEVEL"      envDefault:"info"`
	Backend       string `env:"CUSTOM_WORKSPACES_BACKEND"        envDefault:"auto"`
	DryRun        bool   `env:"CUSTOM_WORKSPACES_DRY_RUN"`
	Watch         bool   `env:"CUSTOM_WORKSPACES_WATCH"          envDefault:"true"`
	ControlSocket string `env:"CUSTOM_WORKSPACES_CONTROL_SOCKET"`
}

// LoadSettings reads daemon settings from the process environment.
func LoadSettings() (Settings, error) {
	return parseSettings(env.Options{})
}

func parseSettings(opts env.Options) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	if s.ConfigPath == "" {
		s.ConfigPath = DefaultPath()
	}
	return s, nil
}
