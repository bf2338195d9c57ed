package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "pagelift"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PAGELIFT"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables, and defaults.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")

	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}

	l.v.AddConfigPath("/etc/pagelift")

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "pagelift"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "pagelift"))
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("engines.default", defaults.Engines.Default)
	l.v.SetDefault("engines.fallback", defaults.Engines.Fallback)
	l.v.SetDefault("engines.auto_page_threshold", defaults.Engines.AutoPageThreshold)

	l.v.SetDefault("engines.tesseract.enabled", defaults.Engines.Tesseract.Enabled)
	l.v.SetDefault("engines.tesseract.languages", defaults.Engines.Tesseract.Languages)
	l.v.SetDefault("engines.tesseract.tessdata_dir", defaults.Engines.Tesseract.TessdataDir)
	l.v.SetDefault("engines.tesseract.priority", defaults.Engines.Tesseract.Priority)

	l.v.SetDefault("engines.paddle.enabled", defaults.Engines.Paddle.Enabled)
	l.v.SetDefault("engines.paddle.model_path", defaults.Engines.Paddle.ModelPath)
	l.v.SetDefault("engines.paddle.dict_path", defaults.Engines.Paddle.DictPath)
	l.v.SetDefault("engines.paddle.num_threads", defaults.Engines.Paddle.NumThreads)
	l.v.SetDefault("engines.paddle.priority", defaults.Engines.Paddle.Priority)

	l.v.SetDefault("engines.remote.enabled", defaults.Engines.Remote.Enabled)
	l.v.SetDefault("engines.remote.base_url", defaults.Engines.Remote.BaseURL)
	l.v.SetDefault("engines.remote.model", defaults.Engines.Remote.Model)
	l.v.SetDefault("engines.remote.timeout_sec", defaults.Engines.Remote.TimeoutSec)
	l.v.SetDefault("engines.remote.priority", defaults.Engines.Remote.Priority)

	l.v.SetDefault("pool.workers", defaults.Pool.Workers)

	l.v.SetDefault("dispatch.page_timeout_sec", defaults.Dispatch.PageTimeoutSec)
	l.v.SetDefault("dispatch.max_attempts", defaults.Dispatch.MaxAttempts)
	l.v.SetDefault("dispatch.backoff_base_ms", defaults.Dispatch.BackoffBaseMs)
	l.v.SetDefault("dispatch.max_page_timeout_sec", defaults.Dispatch.MaxPageTimeoutSec)
	l.v.SetDefault("dispatch.max_attempts_cap", defaults.Dispatch.MaxAttemptsCap)

	l.v.SetDefault("render.dpi", defaults.Render.DPI)
	l.v.SetDefault("render.max_dpi", defaults.Render.MaxDPI)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		paths = append(paths, filepath.Join(home, ".config", "pagelift"))
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "pagelift"))
	}

	paths = append(paths, "/etc/pagelift")

	return paths
}
