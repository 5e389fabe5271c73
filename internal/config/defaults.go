package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultWorkspaceName = "DEFAULT"
	DefaultDisplayMode   = "terminal"

	DefaultRXNHost          = "https://rxn.app.accelerate.science"
	DefaultReactionModel    = "2020-08-10"
	DefaultRetroModel       = "2020-07-01"
	DefaultTopN             = 10
	DefaultSubmitAttempts   = 5
	DefaultSubmitBackoff    = 2 * time.Second
	DefaultPollAttempts     = 10
	DefaultPollInterval     = 2 * time.Second
	DefaultRetroPollAttempt = 30
	DefaultRetroPollEvery   = 10 * time.Second

	DefaultDeepSearchHost = "https://sds.app.accelerate.science/"
	DefaultCollection     = "pubchem"
	DefaultPageSize       = 50
	DefaultSlop           = 3
	DefaultMaxFanOut      = 8

	DefaultServerPort = 8090

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// ApplyDefaults fills zero-valued fields. Explicitly set values are kept.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Workspace.Name == "" {
		cfg.Workspace.Name = DefaultWorkspaceName
	}
	if cfg.Workspace.HomeDir == "" {
		cfg.Workspace.HomeDir = defaultHomeDir()
	}
	if cfg.Workspace.RootDir == "" {
		cfg.Workspace.RootDir = filepath.Join(cfg.Workspace.HomeDir, cfg.Workspace.Name)
	}
	if cfg.Display.Mode == "" {
		cfg.Display.Mode = DefaultDisplayMode
	}

	r := &cfg.RXN
	if r.Host == "" {
		r.Host = DefaultRXNHost
	}
	if r.RequestTimeout == 0 {
		r.RequestTimeout = 60 * time.Second
	}
	if r.ReactionModel == "" {
		r.ReactionModel = DefaultReactionModel
	}
	if r.RetroModel == "" {
		r.RetroModel = DefaultRetroModel
	}
	if r.DefaultTopN == 0 {
		r.DefaultTopN = DefaultTopN
	}
	if r.SubmitMaxAttempts == 0 {
		r.SubmitMaxAttempts = DefaultSubmitAttempts
	}
	if r.SubmitBackoff == 0 {
		r.SubmitBackoff = DefaultSubmitBackoff
	}
	if r.PollMaxAttempts == 0 {
		r.PollMaxAttempts = DefaultPollAttempts
	}
	if r.PollInterval == 0 {
		r.PollInterval = DefaultPollInterval
	}
	if r.RetroPollAttempts == 0 {
		r.RetroPollAttempts = DefaultRetroPollAttempt
	}
	if r.RetroPollInterval == 0 {
		r.RetroPollInterval = DefaultRetroPollEvery
	}
	if r.CacheBackend == "" {
		r.CacheBackend = "file"
	}

	d := &cfg.DeepSearch
	if d.Host == "" {
		d.Host = DefaultDeepSearchHost
	}
	if d.RequestTimeout == 0 {
		d.RequestTimeout = 60 * time.Second
	}
	if d.DefaultCollection == "" {
		d.DefaultCollection = DefaultCollection
	}
	if d.PageSize == 0 {
		d.PageSize = DefaultPageSize
	}
	if d.Slop == 0 {
		d.Slop = DefaultSlop
	}
	if d.MaxFanOut == 0 {
		d.MaxFanOut = DefaultMaxFanOut
	}
	if d.Backend == "" {
		d.Backend = "remote"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "openad:"
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = "openad"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MigrationPath == "" {
		cfg.Postgres.MigrationPath = "migrations"
	}

	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = "bolt://localhost:7687"
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "openad-rxn-worker"
	}
	if cfg.Kafka.WorkerCount == 0 {
		cfg.Kafka.WorkerCount = 1
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = "localhost:9000"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "openad-exports"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	// Retrosynthesis polling may run for minutes.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "openad"
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = "plugins"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".openad"
	}
	return filepath.Join(home, ".openad")
}
