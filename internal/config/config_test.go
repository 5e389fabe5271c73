package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Workspace.HomeDir = "/tmp/openad-home"
	config.ApplyDefaults(cfg)
	return cfg
}

func TestConfig_Validate_Defaults(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"display mode", func(c *config.Config) { c.Display.Mode = "html" }, "display.mode"},
		{"submit attempts", func(c *config.Config) { c.RXN.SubmitMaxAttempts = -1 }, "rxn.submit_max_attempts"},
		{"poll attempts", func(c *config.Config) { c.RXN.PollMaxAttempts = -2 }, "rxn.poll_max_attempts"},
		{"negative backoff", func(c *config.Config) { c.RXN.SubmitBackoff = -1 }, "must not be negative"},
		{"cache backend", func(c *config.Config) { c.RXN.CacheBackend = "memcached" }, "rxn.cache_backend"},
		{"redis cache without redis", func(c *config.Config) { c.RXN.CacheBackend = "redis" }, "redis.enabled is false"},
		{"opensearch backend without addresses", func(c *config.Config) { c.DeepSearch.Backend = "opensearch" }, "opensearch.addresses"},
		{"kafka enabled without brokers", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, "kafka.brokers"},
		{"minio without bucket", func(c *config.Config) {
			c.MinIO.Enabled = true
			c.MinIO.Bucket = ""
		}, "minio.bucket"},
		{"postgres port", func(c *config.Config) {
			c.Postgres.Enabled = true
			c.Postgres.Port = 70000
		}, "postgres.port"},
		{"server port", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"log level", func(c *config.Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_RedisBackend(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.Enabled = true
	cfg.RXN.CacheBackend = "redis"
	assert.NoError(t, cfg.Validate())
}

func TestPostgresConfig_DSN(t *testing.T) {
	t.Parallel()
	p := config.PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "openad", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/openad?sslmode=disable", p.DSN())
}
