package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/engine-rest", cfg.Engine.BaseURL)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.LockDuration)
	assert.Equal(t, 3, cfg.Dispatch.InitialRetries)
	assert.Equal(t, 30*time.Minute, cfg.Cache.DefinitionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Completion.IdleThreshold)
	assert.Equal(t, 30*time.Second, cfg.Completion.WarmupDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
engine:
  base_url: http://engine.internal:8080/engine-rest
dispatch:
  topics:
    - summarize
    - classify
  workers: 8
cache:
  definition_ttl: 10m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskmesh.yaml"), body, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://engine.internal:8080/engine-rest", cfg.Engine.BaseURL)
	assert.Equal(t, []string{"summarize", "classify"}, cfg.Dispatch.Topics)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Cache.DefinitionTTL)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Cache.PropertyTTL)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TASKMESH_DISPATCH_WORKERS", "2")
	t.Setenv("TASKMESH_ENGINE_BASE_URL", "http://env-engine:8080/engine-rest")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, "http://env-engine:8080/engine-rest", cfg.Engine.BaseURL)
}

func TestLoadRejectsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskmesh.yaml"), []byte("engine: [broken"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Dispatch.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.PropertyTTL = 0
	assert.Error(t, cfg.Validate())
}
