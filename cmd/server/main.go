package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/roommatch/internal/api"
	"github.com/mcoot/roommatch/internal/config"
	"github.com/mcoot/roommatch/internal/factory"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configDir string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Room matchmaking server",
		Long: `server runs the room matchmaking service.

Players are placed into fixed-size rooms in creation order. Room events are
pushed over WebSocket or SSE (DELIVERY=push) or exposed for polling
(DELIVERY=poll). Every flag can also be set through the environment or a
.env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configDir)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configDir, "config-dir", ".", "Directory holding an optional .env file")
	flags.Int("port", 8080, "HTTP listen port (env: PORT)")
	flags.String("delivery", config.DeliveryPush, "Event delivery: push or poll (env: DELIVERY)")
	flags.String("storage", config.StorageMemory, "Storage backend: memory or redis (env: STORAGE_TYPE)")
	flags.String("redis-url", "", "Redis URL (env: REDIS_URL)")
	flags.String("log-level", "info", "Log level (env: LOG_LEVEL)")

	for key, flag := range map[string]string{
		"PORT":         "port",
		"DELIVERY":     "delivery",
		"STORAGE_TYPE": "storage",
		"REDIS_URL":    "redis-url",
		"LOG_LEVEL":    "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	factoryCfg, err := factory.FromServerConfig(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	// Create application factory
	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close application", slog.String("error", err.Error()))
		}
	}()

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	server := api.NewServer(api.NewRouter(app.RouterConfig(cfg)), serverConfig, logger)
	if app.Registry != nil {
		server.OnShutdown(app.Registry.Close)
	}

	// Handle graceful shutdown
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		return app.Service.RunSweeper(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		}
		return server.Shutdown(context.Background())
	})

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("delivery", cfg.Delivery),
		slog.String("storage", cfg.StorageType))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}
