package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Maximelego/custom-workspaces/internal/clock"
	"github.com/Maximelego/custom-workspaces/internal/config"
	"github.com/Maximelego/custom-workspaces/internal/control"
	"github.com/Maximelego/custom-workspaces/internal/desktop"
	"github.com/Maximelego/custom-workspaces/internal/loop"
	"github.com/Maximelego/custom-workspaces/internal/metrics"
	"github.com/Maximelego/custom-workspaces/internal/schedule"
	"github.com/Maximelego/custom-workspaces/internal/session"
	"github.com/Maximelego/custom-workspaces/internal/spawn"
	"github.com/Maximelego/custom-workspaces/internal/util"
)

type daemonOptions struct {
	config.Settings
	Dispatch string
}

func runDaemon(ctx context.Context, opts daemonOptions) error {
	logger := util.NewLogger(util.ParseLogLevel(opts.LogLevel))
	defer logger.Sync()

	backendName, err := resolveBackend(opts.Backend, os.Getenv)
	if err != nil {
		return err
	}
	cfgPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	cfgPath = filepath.Clean(cfgPath)

	desk, closeDesk, err := openBackend(backendName, opts.Dispatch, logger.Named(backendName))
	if err != nil {
		return err
	}
	defer closeDesk()

	collector := metrics.NewCollector(true)
	lp := loop.New(logger.Named("loop"))
	sched := schedule.New(clock.Real(), lp, logger.Named("schedule"), collector)
	var spawner desktop.Spawner = spawn.New(logger.Named("spawn"), collector)
	if opts.DryRun {
		logger.Infof("dry-run enabled; workspace changes and launches are only logged")
		desk = desktop.DryRun{Desktop: desk, Logger: logger.Named("dry-run")}
		spawner = desktop.DryRunSpawner{Logger: logger.Named("dry-run")}
	}
	sess, err := session.New(session.Options{
		Loader:     func() (*config.Config, error) { return config.Load(cfgPath) },
		ConfigPath: cfgPath,
		Desktop:    desk,
		Spawner:    spawner,
		Scheduler:  sched,
		Logger:     logger.Named("session"),
		Metrics:    collector,
	})
	if err != nil {
		return err
	}
	reloader := newConfigReloader(cfgPath, logger, sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 1)
	go func() {
		errs <- lp.Run(ctx)
	}()

	if err := lp.Do(ctx, func() error { return reloader.Start(ctx) }); err != nil {
		logger.Warnf("session not started; waiting for a valid config: %v", err)
	}

	ctrlSrv, err := control.NewServer(sess, lp.Do, logger.Named("control"), opts.ControlSocket)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	go func() {
		if err := ctrlSrv.Serve(ctx); err != nil {
			logger.Errorf("control server stopped: %v", err)
		}
	}()

	reloadRequests := make(chan string, 1)
	if opts.Watch {
		watcher, err := newConfigWatcher(cfgPath, logger)
		if err != nil {
			logger.Warnf("config watching disabled: %v", err)
		} else {
			defer watcher.Close()
			go watchConfig(logger, watcher, cfgPath, reloadRequests)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	reload := func(reason string) {
		err := lp.Do(ctx, func() error { return reloader.Reload(ctx, reason) })
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("reload failed: %v", err)
		}
	}

	for {
		select {
		case err := <-errs:
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event loop exited: %w", err)
			}
			logger.Infof("event loop stopped")
			return nil
		case <-ctx.Done():
			return nil
		case reason := <-reloadRequests:
			reload(reason)
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				reload("received SIGHUP")
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				_ = lp.Do(ctx, func() error {
					sess.Disable()
					return nil
				})
				cancel()
			}
		}
	}
}

func newConfigWatcher(target string, logger *util.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	if err := watcher.Add(target); err != nil {
		logger.Debugf("unable to watch config file directly: %v", err)
	}
	return watcher, nil
}

// watchConfig coalesces bursts of writes to target into one reload
// request. Editors often write a file several times in quick succession.
func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, reloadRequests chan<- string) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case reloadRequests <- "config file updated":
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}
