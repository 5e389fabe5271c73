// Command worker runs RXN batches queued on Kafka and publishes their
// completion events.
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
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/handlers"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/http/middleware"
	"github.com/turtacn/OpenAD-Plugins/internal/interfaces/worker"
	"github.com/turtacn/OpenAD-Plugins/internal/session"
)

var version = "dev"

const (
	defaultHealthPort = 8091
	shutdownGrace     = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	consumers := flag.Int("workers", 0, "concurrent consumers (default: kafka.worker_count)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics server")
	flag.Parse()

	if err := run(*configPath, *consumers, *healthPort); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, consumers, healthPort int) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled is false, nothing to consume")
	}
	if consumers <= 0 {
		consumers = cfg.Kafka.WorkerCount
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

	ensureTopics(ctx, cfg.Kafka, logger)

	wcfg := worker.Config{
		Workspace:    cfg.Workspace.Name,
		WorkspaceDir: cfg.Workspace.RootDir,
		Provider:     bootstrap.NewSessionServices(infra, session.New(cfg, logger), logger),
		Logger:       logger,
	}
	if claims := infra.BatchClaims(); claims != nil {
		wcfg.Claims = claims
	}
	if archive := infra.Archive(); archive != nil {
		wcfg.Archive = archive
	}
	batches := worker.NewBatchWorker(wcfg)

	topic := kafka.TopicName(cfg.Kafka.TopicPrefix, kafka.TopicBatchRequested)
	started := make([]*kafka.Consumer, 0, consumers)
	defer func() {
		for _, c := range started {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}()
	for i := 0; i < consumers; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), logger.With(logging.Int("consumer", i)))
		if err != nil {
			return err
		}
		c.Subscribe(topic, kafka.BatchRequestHandler(batches.Handle))
		if err := c.Start(ctx); err != nil {
			return err
		}
		started = append(started, c)
	}

	healthSrv := http.NewServer(config.ServerConfig{Port: healthPort, ShutdownTimeout: shutdownGrace}, http.NewRouter(http.RouterConfig{
		HealthHandler:  handlers.NewHealthHandler(version, infra.HealthChecks()...),
		MetricsHandler: infra.Collector.Handler(),
		Metrics:        infra.Metrics,
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger,
	}), logger)
	errc := make(chan error, 1)
	go func() { errc <- healthSrv.Start() }()

	logger.Info("openad worker started",
		logging.String("version", version),
		logging.String("topic", topic),
		logging.Int("consumers", consumers),
		logging.Bool("claims", wcfg.Claims != nil))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return healthSrv.Stop(shutdownCtx)
}

// ensureTopics creates the batch topics when the broker allows it.
func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger)
	if err != nil {
		logger.Warn("topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.TopicPrefix)); err != nil {
		logger.Warn("failed to ensure kafka topics", logging.Err(err))
	}
}
