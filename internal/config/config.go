// Package config defines the configuration tree shared by the CLI, the API
// server and the worker. Only data types and validation live here; loading is
// in loader.go.
package config

import (
	"fmt"
	"time"
)

// WorkspaceConfig locates the active workspace and the user home that holds
// credential files and the RXN project registry.
type WorkspaceConfig struct {
	Name    string `mapstructure:"name"`
	RootDir string `mapstructure:"root_dir"`
	HomeDir string `mapstructure:"home_dir"`
}

// DisplayConfig selects how results are rendered.
type DisplayConfig struct {
	Mode  string `mapstructure:"mode"` // "terminal" | "notebook" | "api"
	Color bool   `mapstructure:"color"`
}

// RXNConfig holds RXN endpoint, model defaults and retry budgets.
type RXNConfig struct {
	Host              string        `mapstructure:"host"`
	VerifySSL         bool          `mapstructure:"verify_ssl"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReactionModel     string        `mapstructure:"reaction_model"`
	RetroModel        string        `mapstructure:"retro_model"`
	DefaultTopN       int           `mapstructure:"default_topn"`
	SubmitMaxAttempts int           `mapstructure:"submit_max_attempts"`
	SubmitBackoff     time.Duration `mapstructure:"submit_backoff"`
	PollMaxAttempts   int           `mapstructure:"poll_max_attempts"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RetroPollAttempts int           `mapstructure:"retro_poll_attempts"`
	RetroPollInterval time.Duration `mapstructure:"retro_poll_interval"`
	CacheBackend      string        `mapstructure:"cache_backend"` // "file" | "redis"
	UseCacheByDefault bool          `mapstructure:"use_cache_by_default"`
}

// DeepSearchConfig holds Deep Search endpoint and query defaults.
type DeepSearchConfig struct {
	Host              string        `mapstructure:"host"`
	VerifySSL         bool          `mapstructure:"verify_ssl"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DefaultCollection string        `mapstructure:"default_collection"`
	PageSize          int           `mapstructure:"page_size"`
	Slop              int           `mapstructure:"slop"`
	MaxFanOut         int           `mapstructure:"max_fan_out"`
	Backend           string        `mapstructure:"backend"` // "remote" | "opensearch"
}

// LogConfig selects the zap level, encoding and sinks.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// RedisConfig enables the shared prediction cache. KeyPrefix is prepended
// to every key, ahead of the workspace name.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// PostgresConfig holds the analysis record store connection.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// DSN renders a postgres URL usable by both the pgx driver and golang-migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Neo4jConfig holds the retrosynthesis route store connection.
type Neo4jConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// KafkaConfig enables the batch queue. Topic names start with TopicPrefix.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	TopicPrefix     string        `mapstructure:"topic_prefix"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes"`
	WorkerCount     int           `mapstructure:"worker_count"`
}

// MinIOConfig holds the export archive target for "save as" files.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// OpenSearchConfig is used when the Deep Search backend is "opensearch".
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	MaxRetries         int      `mapstructure:"max_retries"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKeys guard /api/v1. Empty leaves the API open.
	APIKeys         []string      `mapstructure:"api_keys"`
}

// MetricsConfig enables the Prometheus registry served on /metrics.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// Config is the root of the configuration tree.
type Config struct {
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Display    DisplayConfig    `mapstructure:"display"`
	RXN        RXNConfig        `mapstructure:"rxn"`
	DeepSearch DeepSearchConfig `mapstructure:"deepsearch"`
	Log        LogConfig        `mapstructure:"log"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// Validate returns the first semantic problem found. Optional backends are
// only checked when enabled.
func (c *Config) Validate() error {
	if c.Workspace.Name == "" {
		return fmt.Errorf("config: workspace.name is required")
	}
	if c.Workspace.RootDir == "" {
		return fmt.Errorf("config: workspace.root_dir is required")
	}

	switch c.Display.Mode {
	case "terminal", "notebook", "api":
	default:
		return fmt.Errorf("config: display.mode %q is invalid; expected terminal|notebook|api", c.Display.Mode)
	}

	if c.RXN.Host == "" {
		return fmt.Errorf("config: rxn.host is required")
	}
	if c.RXN.SubmitMaxAttempts < 1 {
		return fmt.Errorf("config: rxn.submit_max_attempts must be >= 1, got %d", c.RXN.SubmitMaxAttempts)
	}
	if c.RXN.PollMaxAttempts < 1 {
		return fmt.Errorf("config: rxn.poll_max_attempts must be >= 1, got %d", c.RXN.PollMaxAttempts)
	}
	if c.RXN.RetroPollAttempts < 1 {
		return fmt.Errorf("config: rxn.retro_poll_attempts must be >= 1, got %d", c.RXN.RetroPollAttempts)
	}
	if c.RXN.SubmitBackoff < 0 || c.RXN.PollInterval < 0 || c.RXN.RetroPollInterval < 0 {
		return fmt.Errorf("config: rxn backoff intervals must not be negative")
	}
	switch c.RXN.CacheBackend {
	case "file":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("config: rxn.cache_backend is redis but redis.enabled is false")
		}
	default:
		return fmt.Errorf("config: rxn.cache_backend %q is invalid; expected file|redis", c.RXN.CacheBackend)
	}

	if c.DeepSearch.Host == "" {
		return fmt.Errorf("config: deepsearch.host is required")
	}
	if c.DeepSearch.PageSize < 1 {
		return fmt.Errorf("config: deepsearch.page_size must be >= 1, got %d", c.DeepSearch.PageSize)
	}
	switch c.DeepSearch.Backend {
	case "remote":
	case "opensearch":
		if len(c.OpenSearch.Addresses) == 0 {
			return fmt.Errorf("config: deepsearch.backend is opensearch but opensearch.addresses is empty")
		}
	default:
		return fmt.Errorf("config: deepsearch.backend %q is invalid; expected remote|opensearch", c.DeepSearch.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.host and postgres.db_name are required when postgres is enabled")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return fmt.Errorf("config: postgres.port %d is out of range [1, 65535]", c.Postgres.Port)
		}
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required when neo4j is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}
	return nil
}
