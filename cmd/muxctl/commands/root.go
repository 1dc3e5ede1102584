// Package commands implements muxctl's CLI: a thin client over MuxClient,
// LockdownClient, and XpcHandshake for inspecting and exercising a host's
// iOS device multiplexer.
package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/config"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/metrics"
	"github.com/gomux/remotexpc/internal/telemetry"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile      string
	flagSocket   string
	flagOutput   string
	flagLogLevel string
	resolvedCfg  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "muxctl",
	Short: "muxctl - usbmuxd-compatible device multiplexer client",
	Long: `muxctl talks directly to a usbmuxd-compatible multiplexer: it lists
attached devices, fetches pair records, starts lockdown services, and drives
the CoreDeviceProxy HTTP/2+XPC handshake.

Use "muxctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if flagSocket != "" {
			cfg.Muxer.SocketAddress = flagSocket
		}
		if flagLogLevel != "" {
			cfg.Logging.Level = flagLogLevel
		}
		if err := logger.Init(logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		}); err != nil {
			return err
		}

		if cfg.Metrics.Enabled {
			metrics.InitRegistry()
			if cfg.Metrics.Listen != "" {
				serveMetrics(cfg.Metrics.Listen)
			}
		}

		if cfg.Telemetry.Enabled {
			shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
				Enabled:        cfg.Telemetry.Enabled,
				Endpoint:       cfg.Telemetry.Endpoint,
				Insecure:       cfg.Telemetry.Insecure,
				SampleRate:     cfg.Telemetry.SampleRate,
				ServiceName:    cfg.Telemetry.ServiceName,
				ServiceVersion: Version,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			telemetryShutdown = shutdown
		}

		resolvedCfg = cfg
		return nil
	},
}

var telemetryShutdown func(context.Context) error

// serveMetrics starts the Prometheus exposition endpoint in the
// background; it lives only as long as the current invocation, which is
// enough for a one-shot subcommand run under a scrape interval (e.g.
// tunnel-handshake held open for a long tunnel session).
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	go func() {
		srv := &http.Server{Addr: addr, Handler: mux}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics: exposition server stopped", logger.KeyErr, err)
		}
	}()
}

// Execute runs the root command. Called once by main.main.
func Execute() error {
	err := rootCmd.Execute()
	if telemetryShutdown != nil {
		_ = telemetryShutdown(context.Background())
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/remotexpc/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", "", "muxer socket address (unix:PATH or HOST:PORT); overrides discovery")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "output format (table|json)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override configured log level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listDevicesCmd)
	rootCmd.AddCommand(pairRecordCmd)
	rootCmd.AddCommand(startServiceCmd)
	rootCmd.AddCommand(tunnelHandshakeCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
