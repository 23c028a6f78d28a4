package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/snsd/internal/cliconfig"
	"github.com/getmockd/snsd/pkg/endpoint"
	"github.com/getmockd/snsd/pkg/logging"
	"github.com/getmockd/snsd/pkg/requestlog"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

type serveFlags struct {
	configFile      string
	port            int
	path            string
	maxLogEntries   int
	logLevel        string
	logFormat       string
	shutdownTimeout int
}

// serveFlagVals is the package-level instance bound to cobra flags.
var serveFlagVals serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SNS endpoint (default command)",
	Long: `Start the SNS endpoint in the foreground.

POST requests to --path carrying the x-amz-sns-message-type header are logged
and dispatched; SubscriptionConfirmation messages are confirmed by visiting
their SubscribeURL. Every request is answered with the recent log as JSON.`,
	Example: `  # Start with defaults (port 3000, path /amazon-sns)
  snsd serve

  # Custom port, accept SNS messages on any path
  snsd serve --port 8080 --path ""

  # Load settings from a file
  snsd serve --config snsd.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveServeConfig(cmd, &serveFlagVals)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, nil)
	},
}

func initServeCmd() {
	rootCmd.AddCommand(serveCmd)
	bindServeFlags(serveCmd, &serveFlagVals)
}

func bindServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVarP(&f.port, "port", "p", cliconfig.DefaultPort, "HTTP server port")
	cmd.Flags().StringVar(&f.path, "path", cliconfig.DefaultPath, "Path SNS messages are accepted on (empty = any path)")
	cmd.Flags().IntVar(&f.maxLogEntries, "max-log-entries", cliconfig.DefaultMaxLogEntries, "Maximum request log entries")
	cmd.Flags().StringVar(&f.logLevel, "log-level", cliconfig.DefaultLogLevel, "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", cliconfig.DefaultLogFormat, "Log format (text, json)")
	cmd.Flags().IntVar(&f.shutdownTimeout, "shutdown-timeout", cliconfig.DefaultShutdownTimeout, "Graceful shutdown timeout in seconds")
}

// resolveServeConfig loads file and environment configuration and applies
// explicitly set flags on top.
func resolveServeConfig(cmd *cobra.Command, f *serveFlags) (*cliconfig.Config, error) {
	cfg, err := cliconfig.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = f.port
		cfg.Sources["port"] = cliconfig.SourceFlag
	}
	if flags.Changed("path") {
		cfg.Path = f.path
		cfg.Sources["path"] = cliconfig.SourceFlag
	}
	if flags.Changed("max-log-entries") {
		cfg.MaxLogEntries = f.maxLogEntries
		cfg.Sources["maxLogEntries"] = cliconfig.SourceFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
		cfg.Sources["logLevel"] = cliconfig.SourceFlag
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = f.logFormat
		cfg.Sources["logFormat"] = cliconfig.SourceFlag
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = f.shutdownTimeout
		cfg.Sources["shutdownTimeout"] = cliconfig.SourceFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServe serves until ctx is done, then shuts down gracefully.
// If ready is non-nil it receives the bound address once listening.
func runServe(ctx context.Context, cfg *cliconfig.Config, ready chan<- net.Addr) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.Format = logging.ParseFormat(cfg.LogFormat)
	log := logging.New(logCfg)

	store := requestlog.NewMemoryStore(cfg.MaxLogEntries)
	srv := endpoint.New(endpoint.Options{
		Path:  cfg.Path,
		Store: store,
		Log:   log,
	})

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	log.Info("snsd listening", "addr", ln.Addr().String(), "path", cfg.Path, "maxLogEntries", store.Capacity())
	if ready != nil {
		ready <- ln.Addr()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownDuration())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownDuration())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
