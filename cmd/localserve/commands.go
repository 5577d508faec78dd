package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/localserve/internal/console"
	"github.com/loykin/localserve/internal/metrics"
	"github.com/loykin/localserve/internal/process"
	"github.com/loykin/localserve/internal/server"
)

const shutdownTimeout = 5 * time.Second

func cmdStart(ctx context.Context, a *app, out io.Writer) error {
	if err := a.panel.Start(ctx); err != nil {
		return err
	}
	st := a.panel.Status(ctx)
	r := console.NewRenderer(useColor(out, a.cfg.Log.Color))
	_, err := fmt.Fprintln(out, r.Status(st.Running, st.Port))
	return err
}

func cmdStop(ctx context.Context, a *app, out io.Writer) error {
	res, err := a.panel.Stop(ctx)
	if err != nil {
		if process.IsStillRunning(err) {
			return fmt.Errorf("server did not exit: %w", err)
		}
		return err
	}
	if res == process.StopNotRunning {
		_, err = fmt.Fprintln(out, "server not running")
		return err
	}
	_, err = fmt.Fprintf(out, "server stopped (%s)\n", res)
	return err
}

func cmdStatus(ctx context.Context, a *app, out io.Writer, f StatusFlags) error {
	st := a.panel.Status(ctx)
	if f.JSON {
		return printJSON(out, st)
	}
	r := console.NewRenderer(useColor(out, a.cfg.Log.Color))
	lines := []string{r.Status(st.Running, st.Port)}
	if st.Running {
		lines = append(lines, fmt.Sprintf("pid:   %d", st.PID))
		if !st.StartedAt.IsZero() {
			lines = append(lines, "since: "+st.StartedAt.Format(time.RFC3339))
		}
	}
	lines = append(lines,
		fmt.Sprintf("port:  %d", st.Port),
		"root:  "+orDash(st.RootDirectory),
		"log:   "+orDash(st.LogPath),
	)
	_, err := fmt.Fprintln(out, strings.Join(lines, "\n"))
	return err
}

// cmdLogs prints the server log. With Follow it keeps printing new lines
// until ctx is done.
func cmdLogs(ctx context.Context, a *app, out io.Writer, f LogsFlags) error {
	poller := a.panel.Poller()
	poller.SetShowLogs(true)
	buf := a.panel.Buffer()
	r := console.NewRenderer(f.Color)
	q := strings.ToLower(f.Filter)

	emit := func(n int) error {
		lines := buf.Lines()
		if n > len(lines) {
			n = len(lines)
		}
		for _, e := range lines[len(lines)-n:] {
			if q != "" && !strings.Contains(strings.ToLower(e.Text), q) {
				continue
			}
			if _, err := fmt.Fprintln(out, r.Line(e)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := emit(poller.Poll(ctx)); err != nil || !f.Follow {
		return err
	}

	wake, err := watchLog(ctx, a.sup)
	if err != nil {
		a.log.Debug("log watch unavailable; polling only", "error", err)
	}
	interval := f.Interval
	if interval <= 0 {
		interval = a.cfg.PollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
		}
		if err := emit(poller.Poll(ctx)); err != nil {
			return err
		}
	}
}

// cmdServe runs the control API until ctx is done. The supervised server is
// left running on shutdown.
func cmdServe(ctx context.Context, a *app, out io.Writer, f ServeFlags) error {
	listen := f.Listen
	if listen == "" {
		listen = a.cfg.Server.Listen
	}
	base := f.BasePath
	if base == "" {
		base = a.cfg.Server.BasePath
	}

	if err := a.panel.Open(ctx); err != nil {
		a.log.Warn("auto-start failed", "error", err)
	}

	var opts []server.Option
	var metricsSrv *http.Server
	if a.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			a.log.Warn("register metrics", "error", err)
		}
		opts = append(opts, server.WithMetrics(metrics.Handler()))
		if a.cfg.Metrics.Listen != "" && a.cfg.Metrics.Listen != listen {
			metricsSrv = &http.Server{
				Addr:              a.cfg.Metrics.Listen,
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("metrics server", "listen", a.cfg.Metrics.Listen, "error", err)
				}
			}()
		}
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewServer(listen, base, a.panel, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go a.panel.Poller().Run(pollCtx)

	_, _ = fmt.Fprintf(out, "localserve control API on http://%s%s\n", listen, base)
	a.log.Info("serving", "listen", listen, "base_path", base, "metrics", a.cfg.Metrics.Enabled)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("control API: %w", err)
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutCtx)
	}
	if a.sup.IsRunning(shutCtx) {
		a.log.Info("leaving server running", "pid", a.panel.Status(shutCtx).PID)
	}
	return serveErr
}

func cmdConfigShow(ctx context.Context, a *app, out io.Writer) error {
	sc := a.cfg.StoreConfig()
	return printJSON(out, map[string]any{
		"config_file": a.cfg.Path(),
		"name":        a.cfg.Name,
		"settings":    a.panel.Settings(),
		"state":       map[string]string{"type": sc.Type, "path": sc.Path},
		"log_file":    a.sup.NextLogPath(),
		"server":      map[string]string{"listen": a.cfg.Server.Listen, "base_path": a.cfg.Server.BasePath},
		"running":     a.sup.IsRunning(ctx),
	})
}

func cmdConfigSet(ctx context.Context, a *app, out io.Writer, patch console.SettingsPatch) error {
	if patch == (console.SettingsPatch{}) {
		return errors.New("nothing to set: pass at least one of --port, --root, --auto-start, --show-logs")
	}
	s, err := a.panel.Update(ctx, patch)
	if err != nil {
		return err
	}
	return printJSON(out, s)
}
