package bootstrap

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/database/redis"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/storage/filecache"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{Workspace: config.WorkspaceConfig{Name: "default", HomeDir: t.TempDir()}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestNewInfrastructure_NothingEnabled(t *testing.T) {
	cfg := testConfig(t)
	log := testutil.NewRecordingLogger()

	infra, err := NewInfrastructure(context.Background(), cfg, log, Options{})
	require.NoError(t, err)
	defer infra.Close()

	assert.NotNil(t, infra.Metrics)
	assert.IsType(t, &filecache.Cache{}, infra.ResultCache("default", cfg.Workspace.RootDir))
	assert.Nil(t, infra.Analyses())
	assert.Nil(t, infra.Routes())
	assert.Nil(t, infra.Publisher())
	assert.Nil(t, infra.Archive())
	assert.Nil(t, infra.BatchClaims())
	assert.Empty(t, infra.HealthChecks())
	assert.True(t, log.Has("info", "infrastructure initialized"))
}

func TestNewInfrastructure_RedisBackedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.RXN.CacheBackend = "redis"

	infra, err := NewInfrastructure(context.Background(), cfg, testutil.NewRecordingLogger(), Options{})
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &redis.ResultCache{}, infra.ResultCache("default", cfg.Workspace.RootDir))
	assert.NotNil(t, infra.BatchClaims())

	checks := infra.HealthChecks()
	require.Len(t, checks, 1)
	assert.Equal(t, "redis", checks[0].Name)
	require.NoError(t, checks[0].Check(context.Background()))

	rec := httptest.NewRecorder()
	infra.Collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), `openad_plugins_health_check_status{component="redis"} 1`))
}

func TestNewInfrastructure_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewInfrastructure(context.Background(), cfg, nil, Options{})
	assert.Error(t, err)
}

func TestNewServices(t *testing.T) {
	cfg := testConfig(t)
	infra, err := NewInfrastructure(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer infra.Close()

	api, err := client.NewRXNClient("https://rxn.example", "key")
	require.NoError(t, err)
	svc := infra.NewPredictionServices(PredictionDeps{
		Workspace:    "default",
		WorkspaceDir: cfg.Workspace.RootDir,
		API:          api,
		Sleeper:      &testutil.FakeSleeper{},
	}, nil)
	assert.NotNil(t, svc.Batch)
	assert.NotNil(t, svc.Retro)
	assert.NotNil(t, svc.Tools)
	assert.NotNil(t, svc.Cache)

	ds, err := client.NewDeepSearchClient("https://ds.example", "token")
	require.NoError(t, err)
	assert.NotNil(t, infra.NewDeepSearchService(DeepSearchDeps{Workspace: "default", Remote: ds}, nil))
}
