package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/appid"
	"github.com/parlorhq/parlor/internal/config"
	errwrap "github.com/parlorhq/parlor/internal/errors"
	"github.com/parlorhq/parlor/internal/metrics"
	"github.com/parlorhq/parlor/internal/observability"
	"github.com/parlorhq/parlor/internal/server"
	"github.com/parlorhq/parlor/internal/server/handlers"
	"github.com/parlorhq/parlor/internal/telegram"
)

var (
	serverPort int
	serverHost string
	noTelegram bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Start the HTTP API and, when enabled, the Telegram transport.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read and validate the config file

Shutdown stops the HTTP server, waits for in-flight Telegram turns, drains
queued alerts, closes the store and flushes logs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().BoolVar(&noTelegram, "no-telegram", false, "do not start the Telegram transport even if enabled")
}

// serveOverrides turns explicitly set flags into runtime overrides so they
// win over the environment.
func serveOverrides(cmd *cobra.Command) map[string]any {
	serverSettings := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverSettings["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverSettings["port"] = serverPort
	}
	overrides := map[string]any{}
	if len(serverSettings) > 0 {
		overrides["server"] = serverSettings
	}
	if noTelegram {
		overrides["telegram"] = map[string]any{"enabled": false}
	}
	return overrides
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	id := AppIdentity()

	cfg, err := config.Load(ctx, serveOverrides(cmd))
	if err != nil {
		return errwrap.WrapInternal(ctx, err, "configuration failed")
	}

	observability.InitServerLogger(id.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, id.BinaryName)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(id.BinaryName, cfg.Metrics.Port, id.BinaryName); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build relay", zap.Error(err))
		return errwrap.WrapInternal(ctx, err, "relay initialization failed")
	}

	logger.Info("Initializing server",
		zap.String("service", id.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Int("metrics_port", cfg.Metrics.Port),
		zap.Bool("telegram", cfg.Telegram.Enabled),
		zap.Duration("rate_window", cfg.Relay.Window),
		zap.Int("rate_max", cfg.Relay.MaxPerWindow))

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("store", handlers.CheckerFunc(rt.Store.CheckHealth))
	health.RegisterChecker("alert_queue", handlers.CheckerFunc(func(context.Context) error {
		if queued := rt.Alerts.Pending(); queued >= cfg.Notify.QueueSize {
			return fmt.Errorf("alert queue full (%d queued)", queued)
		}
		return nil
	}))
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			return observability.CheckMetrics()
		}))
	}

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Relay: &handlers.RelayHandlers{
			Turns:         rt.Relay,
			Conversations: rt.Relay,
			Resetter:      rt.Relay,
		},
		Health:          health,
		HealthEnabled:   cfg.Health.Enabled,
		AdminToken:      os.Getenv(appid.EnvPrefix() + "ADMIN_TOKEN"),
		MetricsEndpoint: cfg.Metrics.Enabled,
		Profiler:        cfg.Debug.Enabled && cfg.Debug.PprofEnabled,
	})

	runCtx, stopWorkers := context.WithCancel(context.Background())
	started := time.Now()
	metrics.SetServerStartTime(started.Unix())

	go rt.Limiter.RunSweeper(runCtx, cfg.Relay.SweepInterval, func(_, tracked int) {
		metrics.SetTrackedWindows(tracked)
		metrics.SetServerUptime(int64(time.Since(started).Seconds()))
	})

	botDone := make(chan struct{})
	if cfg.Telegram.Enabled {
		bot := &telegram.Bot{
			API:         telegram.NewClient(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.PollTimeout+10*time.Second),
			Turns:       rt.Relay,
			Logger:      logger,
			Greeting:    cfg.Telegram.Greeting,
			PollTimeout: cfg.Telegram.PollTimeout,
			MaxInFlight: cfg.Telegram.MaxInFlight,
		}
		go func() {
			defer close(botDone)
			logger.Info("Starting Telegram transport")
			if err := bot.Run(runCtx); err != nil {
				logger.Error("Telegram transport stopped", zap.Error(err))
			}
		}()
	} else {
		close(botDone)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: HTTP server, transports, runtime, logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		if err := observability.ShutdownMetrics(); err != nil {
			logger.Warn("Metrics exporter shutdown failed", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("Relay shutdown incomplete", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Stopping transports...")
		stopWorkers()
		select {
		case <-botDone:
		case <-time.After(shutdownTimeout):
			logger.Warn("Telegram turns still in flight at shutdown")
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-reading configuration")

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "config reload failed")
		}

		next, err := config.Load(ctx, serveOverrides(cmd))
		if err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "config reload failed")
		}
		// Limits and transports are fixed for the life of the process.
		if next.Relay != cfg.Relay || next.Telegram != cfg.Telegram {
			logger.Warn("Relay or transport settings changed; restart to apply")
		}
		logger.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		stopWorkers()
		_ = rt.Close(context.Background())
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}
