package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/localserve/internal/console"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createStatusCommand(globalFlags),
		createLogsCommand(globalFlags),
		createServeCommand(globalFlags),
		createConfigCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "localserve",
		Short: "Run a local file server that survives restarts of its host",
		Long: `localserve starts a local HTTP file server as a detached process, remembers it
across restarts, and shows its log output.

Examples:
  localserve config set --root ~/site --port 8080
  localserve start
  localserve logs --follow --filter error
  localserve stop
  localserve serve                  # control API and log poller`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (default "+displayPath()+")")
	return root
}

func displayPath() string {
	return filepath.ToSlash(filepath.Join("<user config dir>", "localserve", "config.toml"))
}

// withApp loads the config, runs fn and releases everything it opened.
func withApp(cmd *cobra.Command, flags *GlobalFlags, o appOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, flags.ConfigPath, cmd.ErrOrStderr(), o)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the file server",
		Long: `Start the file server unless it is already running. The server keeps running
after localserve exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, globalFlags, appOptions{events: cmd.OutOrStdout()}, func(ctx context.Context, a *app) error {
				return cmdStart(ctx, a, cmd.OutOrStdout())
			})
		},
	}
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the file server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, globalFlags, appOptions{events: cmd.OutOrStdout()}, func(ctx context.Context, a *app) error {
				return cmdStop(ctx, a, cmd.OutOrStdout())
			})
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the file server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, globalFlags, appOptions{events: cmd.ErrOrStderr()}, func(ctx context.Context, a *app) error {
				return cmdStatus(ctx, a, cmd.OutOrStdout(), *f)
			})
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print status as JSON")
	return cmd
}

func createLogsCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the file server's log",
		Long: `Print the file server's log output. Lines containing ERROR or WARN are
highlighted when --color is set.

Examples:
  localserve logs
  localserve logs --filter 404
  localserve logs --follow`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withApp(cmd, globalFlags, appOptions{events: cmd.ErrOrStderr()}, func(ctx context.Context, a *app) error {
				return cmdLogs(ctx, a, cmd.OutOrStdout(), *f)
			})
		},
	}
	cmd.Flags().StringVar(&f.Filter, "filter", "", "only show lines containing this text (case-insensitive)")
	cmd.Flags().BoolVarP(&f.Follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().BoolVar(&f.Color, "color", useColor(os.Stdout, true), "colour ERROR and WARN lines")
	cmd.Flags().DurationVar(&f.Interval, "interval", 0, "poll interval when following (default from config)")
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and log poller",
		Long: `Run the control API in the foreground. The file server is started when
auto_start is set, and is left running when serve exits.

Examples:
  localserve serve
  localserve serve --listen 127.0.0.1:7070 --base-path /api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withApp(cmd, globalFlags, appOptions{events: cmd.OutOrStdout(), watch: true}, func(ctx context.Context, a *app) error {
				return cmdServe(ctx, a, cmd.OutOrStdout(), *f)
			})
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (default from [server].listen)")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "API base path (default from [server].base_path)")
	return cmd
}

func createConfigCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(createConfigShowCommand(globalFlags), createConfigSetCommand(globalFlags))
	return cmd
}

func createConfigShowCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, globalFlags, appOptions{}, func(ctx context.Context, a *app) error {
				return cmdConfigShow(ctx, a, cmd.OutOrStdout())
			})
		},
	}
}

func createConfigSetCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ConfigSetFlags{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings and save them to the config file",
		Long: `Change settings and save them to the config file. Port and root directory
cannot change while the server is running.

Examples:
  localserve config set --port 9000
  localserve config set --root /srv/www --auto-start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := settingsPatch(cmd, *f)
			if err != nil {
				return err
			}
			return withApp(cmd, globalFlags, appOptions{}, func(ctx context.Context, a *app) error {
				return cmdConfigSet(ctx, a, cmd.OutOrStdout(), patch)
			})
		},
	}
	cmd.Flags().IntVar(&f.Port, "port", 0, "port the server listens on")
	cmd.Flags().StringVar(&f.RootDir, "root", "", "directory to serve")
	cmd.Flags().BoolVar(&f.AutoStart, "auto-start", false, "start the server when serve starts")
	cmd.Flags().BoolVar(&f.ShowLogs, "show-logs", true, "collect server output in the log view")
	return cmd
}

// settingsPatch turns the flags the user actually passed into a patch.
func settingsPatch(cmd *cobra.Command, f ConfigSetFlags) (console.SettingsPatch, error) {
	var p console.SettingsPatch
	fl := cmd.Flags()
	if fl.Changed("port") {
		p.Port = &f.Port
	}
	if fl.Changed("root") {
		abs, err := filepath.Abs(expandTilde(f.RootDir))
		if err != nil {
			return p, fmt.Errorf("root: %w", err)
		}
		p.RootDir = &abs
	}
	if fl.Changed("auto-start") {
		p.AutoStart = &f.AutoStart
	}
	if fl.Changed("show-logs") {
		p.ShowLogs = &f.ShowLogs
	}
	return p, nil
}

func expandTilde(p string) string {
	if p == "~" || (len(p) > 1 && p[0] == '~' && (p[1] == '/' || p[1] == filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
