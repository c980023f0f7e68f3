package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"realtime_dashboard/core"
	"realtime_dashboard/dashboard"
	"realtime_dashboard/metrics"
	"realtime_dashboard/shutdown"
	"realtime_dashboard/webui"
	"realtime_dashboard/webui/auth"
)

// NewServeCmd creates the `serve` command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		Long: `Serve the streaming, data and simulate-update endpoints until SIGINT or
SIGTERM. A second signal forces an immediate exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

// serverConfig maps the service configuration onto the webui server.
func serverConfig(cfg *core.Config) webui.ServerConfig {
	sc := webui.DefaultServerConfig()
	sc.Host = cfg.Host
	sc.Port = cfg.Port
	sc.Stream.PollInterval = cfg.StreamPollInterval
	sc.Stream.StaticChannels = cfg.StreamStaticCategories
	sc.HealthCheck.CheckInterval = cfg.HealthCheckInterval
	sc.SimulateRatePerMinute = cfg.SimulateRatePerMinute
	sc.Version = core.Version
	return sc
}

// runServer wires the store, writer and HTTP server together and blocks
// until a signal arrives, ctx ends or the server fails. It then runs the
// graceful shutdown sequence.
func runServer(ctx context.Context, cfg *core.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Starting dashboard",
		zap.String("version", core.VersionString()),
		zap.Stringer("config", cfg),
	)

	manager := shutdown.NewManager(logger.Named("shutdown"), shutdown.WithTimeout(cfg.ShutdownTimeout))
	manager.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(logger))

	store, err := openStore(cfg, logger)
	if err != nil {
		manager.Shutdown()
		return err
	}
	manager.Register("store", shutdown.PriorityStore, shutdown.Closer(store))

	repo := dashboard.NewRepository(store, logger.Named("repository"))
	if cfg.SeedOnStart {
		seeded, err := repo.SeedDefaults(ctx, false)
		if err != nil {
			manager.Shutdown()
			return fmt.Errorf("failed to seed defaults: %w", err)
		}
		if len(seeded) > 0 {
			logger.Info("Seeded default snapshots", zap.Stringers("categories", seeded))
		}
	}

	var guard webui.AuthProvider
	if cfg.AdminGuardEnabled() {
		g, err := auth.NewAdminGuard(cfg.AdminPassword, cfg.AdminPasswordHash, logger.Named("auth"))
		if err != nil {
			manager.Shutdown()
			return core.ErrInvalidValue("ADMIN_PASSWORD_HASH", "(hidden)", err.Error())
		}
		guard = g
	} else {
		logger.Warn("No admin password configured, simulate-update is open to every client")
	}

	server, err := webui.NewServer(serverConfig(cfg), webui.Dependencies{
		Repo:      repo,
		Writer:    dashboard.NewWriter(repo, logger.Named("writer")),
		Collector: metrics.NewCollector(),
		Tracker:   manager,
		Auth:      guard,
	}, logger.Named("webui"))
	if err != nil {
		manager.Shutdown()
		return err
	}
	manager.Register("http-server", shutdown.PriorityHTTPServer, shutdown.HTTPServer(server.HTTPServer()))

	manager.Start()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(manager.Context())
	}()

	var runErr error
	select {
	case <-manager.Context().Done():
	case <-ctx.Done():
		logger.Info("Stop requested")
		manager.Trigger()
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			runErr = err
		}
		manager.Trigger()
	}

	if err := manager.Shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
