package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetConfigState clears PAGELIFT_ environment variables and the global
// viper instance so tests do not leak state into each other.
func resetConfigState(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, EnvPrefix+"_") {
			key, _, _ := strings.Cut(env, "=")
			_ = os.Unsetenv(key)
		}
	}
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoader_DefaultsWithNoConfigFile(t *testing.T) {
	resetConfigState(t)

	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(originalWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "auto", cfg.Engines.Default)
}

func TestLoader_LoadWithFile(t *testing.T) {
	resetConfigState(t)

	configFile := filepath.Join(t.TempDir(), "pagelift.yaml")
	yamlContent := `
log_level: debug
verbose: true
engines:
  default: tesseract
  fallback: paddle
  tesseract:
    languages: [eng, deu]
dispatch:
  page_timeout_sec: 45
server:
  host: 0.0.0.0
  port: 9090
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlContent), 0o644))

	loader := NewLoader()
	cfg, err := loader.LoadWithFile(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "tesseract", cfg.Engines.Default)
	assert.Equal(t, "paddle", cfg.Engines.Fallback)
	assert.Equal(t, []string{"eng", "deu"}, cfg.Engines.Tesseract.Languages)
	assert.Equal(t, 45, cfg.Dispatch.PageTimeoutSec)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, configFile, loader.GetConfigFileUsed())
}

func TestLoader_InvalidYAML(t *testing.T) {
	resetConfigState(t)

	configFile := filepath.Join(t.TempDir(), "pagelift.yaml")
	invalidYAML := `
log_level: debug
  bad indentation
`
	require.NoError(t, os.WriteFile(configFile, []byte(invalidYAML), 0o644))

	_, err := NewLoader().LoadWithFile(configFile)
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	resetConfigState(t)

	_, err := NewLoader().LoadWithFile("/nonexistent/pagelift.yaml")
	assert.Error(t, err)
}

func TestLoader_ValidationFailure(t *testing.T) {
	resetConfigState(t)

	configFile := filepath.Join(t.TempDir(), "pagelift.yaml")
	yamlContent := `
log_level: shouting
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlContent), 0o644))

	_, err := NewLoader().LoadWithFile(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoader_EnvironmentOverride(t *testing.T) {
	resetConfigState(t)

	t.Setenv("PAGELIFT_LOG_LEVEL", "debug")
	t.Setenv("PAGELIFT_SERVER_PORT", "9999")
	t.Setenv("PAGELIFT_ENGINES_DEFAULT", "paddle")

	tmpDir := t.TempDir()
	originalWd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(originalWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "paddle", cfg.Engines.Default)
}

func TestLoader_EnvironmentBeatsFile(t *testing.T) {
	resetConfigState(t)

	configFile := filepath.Join(t.TempDir(), "pagelift.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("log_level: warn\n"), 0o644))

	t.Setenv("PAGELIFT_LOG_LEVEL", "debug")

	cfg, err := NewLoader().LoadWithFile(configFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestGetConfigSearchPaths(t *testing.T) {
	paths := GetConfigSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, "/etc/pagelift")
}
