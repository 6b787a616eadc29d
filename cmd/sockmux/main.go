package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/momentics/sockmux/control"
	"github.com/momentics/sockmux/internal/config"
	"github.com/momentics/sockmux/internal/logging"
	"github.com/momentics/sockmux/internal/pathwatch"
	"github.com/momentics/sockmux/internal/report"
	"github.com/momentics/sockmux/server"
)

const longHelp = `Serve many local clients over one Unix-domain socket.

Every chunk a client writes is uppercased and printed on the console.
Connections are multiplexed on a single goroutine: an epoll readiness
notifier triggers service passes and a zero-timeout poll fallback runs
every 10ms so no readiness is ever lost.

Configuration precedence: flags > SOCKMUX_* environment > config file > defaults.`

var exampleUsage = strings.TrimSpace(`
  sockmux
  sockmux --socket /run/user/1000/mux.sock --max-clients 64
  echo hello | sockmux send
  sockmux send --message "hello there" --preview
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:          "sockmux",
		Short:        "Unix-domain socket connection multiplexer",
		Long:         longHelp,
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if err := loadConfig(&cfg, cfgPath, changed); err != nil {
				return err
			}
			log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			log.Debug().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg, log, cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("sockmux failed")
				return err
			}
			return nil
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "config file path (default $HOME/.sockmux/config.toml)")
	f.StringVar(&cfg.SocketPath, "socket", cfg.SocketPath, "listening socket path")
	f.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "maximum simultaneous clients")
	f.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "per-client read buffer in bytes")
	f.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen backlog (0 = max-clients)")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "sleep between loop passes")
	f.DurationVar(&cfg.ServiceInterval, "service-interval", cfg.ServiceInterval, "longest gap between full service passes")
	f.BoolVar(&cfg.Notify, "notify", cfg.Notify, "use the epoll readiness notifier")
	f.BoolVar(&cfg.WatchPath, "watch-path", cfg.WatchPath, "warn when the socket path is removed while serving")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console, json)")

	root.AddCommand(newSendCmd())
	return root
}

// loadConfig layers file and environment values under explicit flags and
// validates the result.
func loadConfig(cfg *config.Config, cfgPath string, changed map[string]bool) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if cfgPath != "" {
		return fmt.Errorf("config file %s not found", cfgPath)
	}
	if err := config.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// serve runs the multiplexer until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger, out io.Writer) error {
	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	console := report.NewConsole(out)

	opts := []server.ServerOption{
		server.WithLogger(log),
		server.WithReporter(console),
		server.WithMetrics(metrics),
		server.WithProbes(probes),
	}
	if !cfg.Notify {
		opts = append(opts, server.WithoutNotifier())
	}
	srv, err := server.New(server.Config{
		SocketPath:      cfg.SocketPath,
		MaxClients:      cfg.MaxClients,
		BufferSize:      cfg.BufferSize,
		Backlog:         cfg.Backlog,
		PollInterval:    cfg.PollInterval,
		ServiceInterval: cfg.ServiceInterval,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if cfg.WatchPath {
		w, err := pathwatch.New(cfg.SocketPath, log, func() {
			metrics.Add(control.MetricPathRemoved, 1)
		})
		if err != nil {
			log.Warn().Err(err).Msg("socket path watch disabled")
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	err = srv.Run(ctx)
	if cerr := console.Err(); cerr != nil {
		log.Warn().Err(cerr).Msg("console output failed")
	}
	return err
}
