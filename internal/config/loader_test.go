package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
workspace:
  name: RESEARCH
  root_dir: /tmp/openad/research
  home_dir: /tmp/openad
display:
  mode: api
rxn:
  submit_max_attempts: 3
  submit_backoff: 500ms
  retro_poll_interval: 5s
deepsearch:
  page_size: 20
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "RESEARCH", cfg.Workspace.Name)
	assert.Equal(t, "api", cfg.Display.Mode)
	assert.True(t, cfg.Display.Color)
	assert.True(t, cfg.RXN.VerifySSL)
	assert.Equal(t, 3, cfg.RXN.SubmitMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RXN.SubmitBackoff)
	assert.Equal(t, 5*time.Second, cfg.RXN.RetroPollInterval)
	assert.Equal(t, 10, cfg.RXN.PollMaxAttempts)
	assert.Equal(t, 20, cfg.DeepSearch.PageSize)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "rxn: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "display:\n  mode: html\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OPENAD_RXN_SUBMIT_MAX_ATTEMPTS", "7")
	t.Setenv("OPENAD_DEEPSEARCH_DEFAULT_COLLECTION", "patent-uspto")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RXN.SubmitMaxAttempts)
	assert.Equal(t, "patent-uspto", cfg.DeepSearch.DefaultCollection)
}

func TestLoadFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("OPENAD_WORKSPACE_HOME_DIR", home)
	t.Setenv("OPENAD_WORKSPACE_NAME", "ENVWS")
	t.Setenv("OPENAD_SERVER_PORT", "9191")
	t.Setenv("OPENAD_DISPLAY_COLOR", "false")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "ENVWS", cfg.Workspace.Name)
	assert.Equal(t, filepath.Join(home, "ENVWS"), cfg.Workspace.RootDir)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.False(t, cfg.Display.Color)
}

func TestLoadOptional_EmptyPathUsesEnv(t *testing.T) {
	t.Setenv("OPENAD_WORKSPACE_HOME_DIR", t.TempDir())
	cfg, err := LoadOptional("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkspaceName, cfg.Workspace.Name)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	changed := make(chan *Config, 4)
	require.NoError(t, Watch(path, func(c *Config) { changed <- c }, nil))

	updated := sampleYAML + "\nserver:\n  port: 9292\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, "RESEARCH", c.Workspace.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}
