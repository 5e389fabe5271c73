// Command apiserver serves the RXN and Deep Search operations over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/handlers"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/middleware"
	"github.com/turtacn/OpenAD-Plugins/internal/session"
)

var version = "dev"

const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.NewInfrastructure(ctx, cfg, logger, bootstrap.Options{Migrate: true, EnableProcessMetrics: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	services := bootstrap.NewSessionServices(infra, session.New(cfg, logger), logger)

	var queue handlers.BatchQueue
	if infra.Producer != nil {
		queue = infra.Producer
	}

	routerCfg := http.RouterConfig{
		HealthHandler:     handlers.NewHealthHandler(version, infra.HealthChecks()...),
		RXNHandler:        handlers.NewRXNHandler(services, queue, cfg, logger),
		DeepSearchHandler: handlers.NewDeepSearchHandler(services, cfg.DeepSearch.DefaultCollection, logger),
		Auth:              middleware.NewAPIKeyAuth(cfg.Server.APIKeys),
		Logging:           middleware.DefaultLoggingConfig(),
		Metrics:           infra.Metrics,
		Logger:            logger,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = infra.Collector.Handler()
	}
	if routerCfg.Auth == nil {
		logger.Warn("no server.api_keys configured, /api/v1 is open")
	} else if configPath != "" {
		watchAPIKeys(configPath, routerCfg.Auth, logger)
	}

	srv := http.NewServer(cfg.Server, http.NewRouter(routerCfg), logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	logger.Info("openad apiserver started",
		logging.String("version", version),
		logging.String("workspace", cfg.Workspace.Name),
		logging.Int("port", cfg.Server.Port))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// watchAPIKeys rotates the accepted keys whenever the config file changes.
func watchAPIKeys(configPath string, auth *middleware.APIKeyAuth, logger logging.Logger) {
	err := config.Watch(configPath, func(c *config.Config) {
		if auth.SetKeys(c.Server.APIKeys) {
			logger.Info("api keys reloaded", logging.Int("keys", len(c.Server.APIKeys)))
			return
		}
		logger.Warn("ignoring config reload without api keys")
	}, func(err error) {
		logger.Warn("config reload failed", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch unavailable", logging.Err(err))
	}
}
