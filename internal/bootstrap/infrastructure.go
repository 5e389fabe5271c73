// Package bootstrap builds the infrastructure clients and application
// services shared by the CLI, the API server and the worker.
package bootstrap

import (
	"context"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/database/neo4j"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/database/postgres"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/database/redis"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/search/opensearch"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/storage/filecache"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/storage/minio"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// Options tune NewInfrastructure.
type Options struct {
	// Migrate applies the postgres migrations after connecting.
	Migrate bool
	// EnableProcessMetrics registers the process and Go runtime collectors.
	EnableProcessMetrics bool
}

// Infrastructure holds the optional backends enabled in the configuration.
// A nil field means the backend is disabled.
type Infrastructure struct {
	Redis      *redis.Client
	Postgres   *postgres.Connection
	Neo4j      *neo4j.Driver
	Producer   *kafka.Producer
	MinIO      *minio.MinIOClient
	OpenSearch *opensearch.Client

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	cfg    *config.Config
	logger logging.Logger
}

// NewInfrastructure connects every enabled backend. The first failure
// closes what was already opened and is returned.
func NewInfrastructure(ctx context.Context, cfg *config.Config, log logging.Logger, opts Options) (*Infrastructure, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	infra := &Infrastructure{cfg: cfg, logger: log.Named("bootstrap")}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            cfg.Metrics.Subsystem,
		EnableProcessMetrics: opts.EnableProcessMetrics,
		EnableGoMetrics:      opts.EnableProcessMetrics,
	}, log)
	if err != nil {
		return nil, err
	}
	infra.Collector = collector
	infra.Metrics = prometheus.NewAppMetrics(collector)

	if cfg.Redis.Enabled {
		if infra.Redis, err = redis.NewClient(cfg.Redis, log); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.Postgres.Enabled {
		if infra.Postgres, err = postgres.NewConnection(cfg.Postgres, log); err != nil {
			infra.Close()
			return nil, err
		}
		if opts.Migrate {
			if err := infra.Postgres.RunMigrations(cfg.Postgres.MigrationPath); err != nil {
				infra.Close()
				return nil, err
			}
		}
	}

	if cfg.Neo4j.Enabled {
		if infra.Neo4j, err = neo4j.NewDriver(cfg.Neo4j, log); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.Kafka.Enabled {
		if infra.Producer, err = kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), log); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.MinIO.Enabled {
		if infra.MinIO, err = minio.NewMinIOClient(cfg.MinIO, log); err != nil {
			infra.Close()
			return nil, err
		}
	}

	if cfg.DeepSearch.Backend == "opensearch" {
		osCfg := opensearch.ConfigFrom(cfg.OpenSearch, cfg.DeepSearch.RequestTimeout)
		if infra.OpenSearch, err = opensearch.NewClient(osCfg, log); err != nil {
			infra.Close()
			return nil, err
		}
	}

	infra.logger.Info("infrastructure initialized",
		logging.Bool("redis", infra.Redis != nil),
		logging.Bool("postgres", infra.Postgres != nil),
		logging.Bool("neo4j", infra.Neo4j != nil),
		logging.Bool("kafka", infra.Producer != nil),
		logging.Bool("minio", infra.MinIO != nil),
		logging.Bool("opensearch", infra.OpenSearch != nil))
	return infra, nil
}

// Close releases every opened backend. Errors are logged.
func (i *Infrastructure) Close() {
	if i.OpenSearch != nil {
		i.logClose("opensearch", i.OpenSearch.Close())
	}
	if i.MinIO != nil {
		i.logClose("minio", i.MinIO.Close())
	}
	if i.Producer != nil {
		i.logClose("kafka", i.Producer.Close())
	}
	if i.Neo4j != nil {
		i.logClose("neo4j", i.Neo4j.Close())
	}
	if i.Postgres != nil {
		i.logClose("postgres", i.Postgres.Close())
	}
	if i.Redis != nil {
		i.logClose("redis", i.Redis.Close())
	}
}

func (i *Infrastructure) logClose(backend string, err error) {
	if err != nil {
		i.logger.Warn("failed to close backend", logging.String("backend", backend), logging.Err(err))
	}
}

// ResultCache returns the configured prediction cache for one workspace.
func (i *Infrastructure) ResultCache(workspace, workspaceDir string) reaction.ResultCache {
	if i.cfg.RXN.CacheBackend == "redis" && i.Redis != nil {
		return redis.NewResultCache(i.Redis, i.cfg.Redis.KeyPrefix, workspace, i.logger)
	}
	return filecache.New(workspaceDir, i.logger)
}

// Analyses returns the analysis record store, or nil when postgres is off.
func (i *Infrastructure) Analyses() reaction.AnalysisRepository {
	if i.Postgres == nil {
		return nil
	}
	return postgres.NewAnalysisRepository(i.Postgres, i.logger)
}

// Routes returns the route graph store, or nil when neo4j is off.
func (i *Infrastructure) Routes() reaction.RouteRepository {
	if i.Neo4j == nil {
		return nil
	}
	return neo4j.NewRouteRepository(i.Neo4j, i.logger)
}

// Publisher returns the batch event publisher, or nil when kafka is off.
func (i *Infrastructure) Publisher() prediction.EventPublisher {
	if i.Producer == nil {
		return nil
	}
	return i.Producer
}

// Archive returns the export archive, or nil when minio is off.
func (i *Infrastructure) Archive() *minio.ExportArchive {
	if i.MinIO == nil {
		return nil
	}
	return minio.NewExportArchive(i.MinIO, i.logger)
}

// BatchClaims returns the redis batch de-duplication claims, or nil when
// redis is off.
func (i *Infrastructure) BatchClaims() *redis.BatchClaims {
	if i.Redis == nil {
		return nil
	}
	return redis.NewBatchClaims(i.Redis, i.cfg.Redis.KeyPrefix)
}

// HealthCheck is one named backend check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthChecks lists a check per enabled backend. Each check records its
// outcome in the health gauge.
func (i *Infrastructure) HealthChecks() []HealthCheck {
	var checks []HealthCheck
	add := func(name string, fn func(ctx context.Context) error) {
		checks = append(checks, HealthCheck{Name: name, Check: func(ctx context.Context) error {
			err := fn(ctx)
			i.Metrics.SetHealth(name, err == nil)
			return err
		}})
	}
	if i.Redis != nil {
		add("redis", i.Redis.Ping)
	}
	if i.Postgres != nil {
		add("postgres", i.Postgres.HealthCheck)
	}
	if i.Neo4j != nil {
		add("neo4j", i.Neo4j.HealthCheck)
	}
	if i.MinIO != nil {
		add("minio", func(ctx context.Context) error {
			st, err := i.MinIO.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !st.Healthy {
				return errors.New(errors.ErrCodeServiceUnavailable, st.Error)
			}
			return nil
		})
	}
	if i.OpenSearch != nil {
		add("opensearch", i.OpenSearch.Ping)
	}
	return checks
}
