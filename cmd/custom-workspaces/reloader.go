package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

// lifecycle is the part of the session the reloader drives.
type lifecycle interface {
	Enable(ctx context.Context) error
	Reload(ctx context.Context) error
}

// configReloader restarts the session when the config changes. A
// document that does not decode or validate is rejected before the
// running session is touched.
type configReloader struct {
	path           string
	logger         *util.Logger
	session        lifecycle
	lastConfig     *config.Config
	lastSerialized []byte
}

func newConfigReloader(path string, logger *util.Logger, session lifecycle) *configReloader {
	return &configReloader{path: path, logger: logger, session: session}
}

// Start bootstraps the session and remembers the document it used.
func (r *configReloader) Start(ctx context.Context) error {
	if raw, cfg, err := r.read(); err == nil {
		r.remember(raw, cfg)
	}
	return r.session.Enable(ctx)
}

func (r *configReloader) Reload(ctx context.Context, reason string) error {
	r.logger.Infof("%s, reloading config", reason)
	raw, cfg, err := r.read()
	if err != nil {
		if raw != nil {
			r.logDiff(raw)
		}
		return err
	}
	if r.lastConfig != nil {
		if diff := config.Diff(r.lastConfig, cfg); diff != "" {
			r.logger.Debugf("config changes (-old +new):\n%s", diff)
		} else {
			r.logger.Infof("config unchanged; restarting session anyway")
		}
	}
	if err := r.session.Reload(ctx); err != nil {
		return err
	}
	r.remember(raw, cfg)
	return nil
}

// read returns the raw document even when it fails to decode or lint.
func (r *configReloader) read() ([]byte, *config.Config, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read config: %w", config.ErrConfiguration, err)
	}
	cfg, err := config.Decode(raw, config.FormatForPath(r.path))
	if err != nil {
		return raw, nil, err
	}
	if lintErrs := cfg.Lint(); len(lintErrs) > 0 {
		r.logLintErrors(lintErrs)
		return raw, nil, fmt.Errorf("%w: %w", config.ErrConfiguration, lintErrs[0])
	}
	return raw, cfg, nil
}

func (r *configReloader) remember(raw []byte, cfg *config.Config) {
	r.lastConfig = cfg
	r.lastSerialized = append([]byte(nil), raw...)
}

func (r *configReloader) logDiff(current []byte) {
	if r.lastSerialized == nil {
		r.logger.Warnf("config change rejected; no previous valid config to compare against")
		return
	}
	diff := config.DiffSerialized(r.lastSerialized, current)
	if diff == "" {
		r.logger.Warnf("config change rejected; unable to compute diff vs last valid config")
		return
	}
	r.logger.Warnf("config change rejected; diff vs last valid config:\n%s", diff)
}

func (r *configReloader) logLintErrors(errs []config.LintError) {
	r.logger.Warnf("config validation failed with %d issue(s):", len(errs))
	for _, lintErr := range errs {
		if lintErr.Path != "" {
			r.logger.Warnf(" - %s: %s", lintErr.Path, lintErr.Message)
			continue
		}
		r.logger.Warnf(" - %s", lintErr.Message)
	}
}
