package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8790, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 70, cfg.Call.TickMs)
	assert.Equal(t, 0.02, cfg.Call.SilenceThreshold)
	assert.Equal(t, 900, cfg.Call.MinRecordMs)
	assert.Equal(t, 1100, cfg.Call.SilenceHoldMs)
	assert.Equal(t, 30000, cfg.Call.MaxTurnMs)
	assert.Equal(t, 2500, cfg.Turn.DedupeWindowMs)
	assert.Equal(t, 25000, cfg.Turn.SweepIntervalMs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8790, cfg.Server.Port)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9001
call:
  minRecordMs: 600
  silenceHoldMs: 1500
providers:
  llm:
    model: coach-large
    apiKey: ${VOX_TEST_LLM_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("VOX_TEST_LLM_KEY", "sk-test-123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 600, cfg.Call.MinRecordMs)
	assert.Equal(t, 1500, cfg.Call.SilenceHoldMs)
	assert.Equal(t, "coach-large", cfg.Providers.LLM.Model)
	assert.Equal(t, "sk-test-123", cfg.Providers.LLM.APIKey, "env reference should be expanded")
	// Untouched knobs still get defaults.
	assert.Equal(t, 30000, cfg.Call.MaxTurnMs)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXCOACH_PORT", "7777")
	t.Setenv("VOXCOACH_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestExpandEnvVarsUnsetLeftAlone(t *testing.T) {
	assert.Equal(t, "${DEFINITELY_NOT_SET_XYZ}", expandEnvVars("${DEFINITELY_NOT_SET_XYZ}"))
}

func TestResolvePathsHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXCOACH_HOME", dir)

	paths, err := ResolvePaths()
	require.NoError(t, err)

	assert.Equal(t, dir, paths.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), paths.Config)

	require.NoError(t, paths.EnsureDirs())
	assert.DirExists(t, paths.Data)
	assert.DirExists(t, paths.Sounds)
}
