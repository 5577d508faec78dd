package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loykin/localserve/internal/config"
	"github.com/loykin/localserve/internal/console"
	"github.com/loykin/localserve/internal/logger"
	"github.com/loykin/localserve/internal/store"
	"github.com/loykin/localserve/internal/store/factory"
	"github.com/loykin/localserve/internal/supervisor"
	"github.com/loykin/localserve/internal/tail"
)

// app is everything one command invocation needs, built from the config file.
type app struct {
	cfg   *config.FileConfig
	log   *slog.Logger
	store store.Store
	sup   *supervisor.Supervisor
	panel *console.Panel

	closers []io.Closer
	unsub   func()
}

type appOptions struct {
	// events receives supervisor status lines; nil discards them
	events io.Writer
	// watch wakes the poller on log file changes
	watch bool
}

func openApp(ctx context.Context, configPath string, logOut io.Writer, o appOptions) (*app, error) {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, unsub: func() {}}

	log, lc := logger.NewSlogger(cfg.LoggerConfig(), logOut)
	a.log = log
	a.closers = append(a.closers, lc)

	st, err := factory.NewFromConfig(cfg.StoreConfig())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st)
	if err := st.EnsureSchema(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("prepare state store: %w", err)
	}

	scfg, err := cfg.Supervisor()
	if err != nil {
		a.close()
		return nil, err
	}
	a.sup = supervisor.New(scfg, st, supervisor.WithLogger(log))
	if o.events != nil {
		a.unsub = a.sup.Subscribe(func(line string) { _, _ = fmt.Fprintln(o.events, line) })
	}

	var popts []console.PollerOption
	if o.watch {
		// re-attach first so the watch follows a running server's log
		a.sup.IsRunning(ctx)
		if ch, err := watchLog(ctx, a.sup); err != nil {
			log.Debug("log watch unavailable; polling only", "error", err)
		} else {
			popts = append(popts, console.WithWake(ch))
		}
	}
	poller := console.NewPoller(a.sup, console.NewLogBuffer(cfg.MaxLogLines), cfg.PollInterval, popts...)
	save := func(s config.Settings) error { return config.SaveSettings(cfg.Path(), s) }
	a.panel = console.NewPanel(a.sup, poller, cfg.Settings(), save, log)
	return a, nil
}

// watchLog watches every server log in the log directory, so a port change
// made while serving keeps waking the poller. A re-attached server's log
// outside that directory is watched as well.
func watchLog(ctx context.Context, sup *supervisor.Supervisor) (<-chan struct{}, error) {
	dir := sup.LogDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	patterns := []string{filepath.Join(dir, supervisor.LogPattern)}
	if p := sup.LogPath(); p != "" && filepath.Clean(filepath.Dir(p)) != filepath.Clean(dir) {
		patterns = append(patterns, p)
	}
	return tail.WatchMatch(ctx, patterns...)
}

func (a *app) close() {
	if a.panel != nil {
		a.panel.Close()
	}
	if a.unsub != nil {
		a.unsub()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
