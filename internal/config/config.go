package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/engine/paddle"
	"github.com/pagelift/pagelift/internal/engine/remote"
	"github.com/pagelift/pagelift/internal/engine/tesseract"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

// Config represents the complete configuration for the pagelift service.
// It includes settings for all commands (process, serve, engines) and
// supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Engine selection and per-engine settings
	Engines EnginesConfig `mapstructure:"engines" yaml:"engines" json:"engines"`

	// Worker pool sizing
	Pool PoolConfig `mapstructure:"pool" yaml:"pool" json:"pool"`

	// Page dispatch policy
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch" json:"dispatch"`

	// Document rendering
	Render RenderConfig `mapstructure:"render" yaml:"render" json:"render"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// EnginesConfig contains engine selection settings and the per-engine blocks.
type EnginesConfig struct {
	// Default is the engine used when a request names none; "auto" selects
	// by page count and capability class.
	Default string `mapstructure:"default" yaml:"default" json:"default"`

	// Fallback is consulted once per page after the default is exhausted.
	Fallback string `mapstructure:"fallback" yaml:"fallback" json:"fallback"`

	// AutoPageThreshold is the page count above which auto selection prefers
	// the fast class over the accurate class.
	AutoPageThreshold int `mapstructure:"auto_page_threshold" yaml:"auto_page_threshold" json:"auto_page_threshold"`

	Tesseract TesseractConfig `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`
	Paddle    PaddleConfig    `mapstructure:"paddle" yaml:"paddle" json:"paddle"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote" json:"remote"`
}

// TesseractConfig contains tesseract engine settings.
type TesseractConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Languages   []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	TessdataDir string   `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	Priority    int      `mapstructure:"priority" yaml:"priority" json:"priority"`
}

// PaddleConfig contains ONNX recognition engine settings.
type PaddleConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ModelPath  string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath   string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	NumThreads int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Priority   int    `mapstructure:"priority" yaml:"priority" json:"priority"`
}

// RemoteConfig contains remote vision engine settings.
type RemoteConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Priority   int    `mapstructure:"priority" yaml:"priority" json:"priority"`
}

// PoolConfig contains worker pool settings.
type PoolConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// DispatchConfig contains per-page retry and timeout policy.
type DispatchConfig struct {
	PageTimeoutSec    int `mapstructure:"page_timeout_sec" yaml:"page_timeout_sec" json:"page_timeout_sec"`
	MaxAttempts       int `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	BackoffBaseMs     int `mapstructure:"backoff_base_ms" yaml:"backoff_base_ms" json:"backoff_base_ms"`
	MaxPageTimeoutSec int `mapstructure:"max_page_timeout_sec" yaml:"max_page_timeout_sec" json:"max_page_timeout_sec"`
	MaxAttemptsCap    int `mapstructure:"max_attempts_cap" yaml:"max_attempts_cap" json:"max_attempts_cap"`
}

// RenderConfig contains document normalization settings.
type RenderConfig struct {
	DPI    int `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
	MaxDPI int `mapstructure:"max_dpi" yaml:"max_dpi" json:"max_dpi"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	renderDefaults := document.DefaultConfig()
	dispatchDefaults := dispatch.DefaultConfig()
	selectorDefaults := engine.DefaultSelectorConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Engines: EnginesConfig{
			Default:           engine.AutoName,
			Fallback:          "",
			AutoPageThreshold: selectorDefaults.AutoPageThreshold,
			Tesseract: TesseractConfig{
				Enabled:   true,
				Languages: []string{"eng"},
				Priority:  10,
			},
			Paddle: PaddleConfig{
				Enabled:  true,
				Priority: 20,
			},
			Remote: RemoteConfig{
				Enabled:    false,
				BaseURL:    "http://localhost:11434",
				Model:      "llama3.2-vision",
				TimeoutSec: 120,
				Priority:   30,
			},
		},
		Pool: PoolConfig{
			Workers: runtime.NumCPU(),
		},
		Dispatch: DispatchConfig{
			PageTimeoutSec:    int(dispatchDefaults.PageTimeout / time.Second),
			MaxAttempts:       dispatchDefaults.MaxAttempts,
			BackoffBaseMs:     int(dispatchDefaults.BackoffBase / time.Millisecond),
			MaxPageTimeoutSec: int(dispatchDefaults.MaxPageTimeout / time.Second),
			MaxAttemptsCap:    dispatchDefaults.MaxAttemptsCap,
		},
		Render: RenderConfig{
			DPI:    renderDefaults.DPI,
			MaxDPI: renderDefaults.MaxDPI,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validEngines := []string{engine.AutoName, tesseract.Name, paddle.Name, remote.Name}
	if c.Engines.Default != "" && !contains(validEngines, c.Engines.Default) {
		return fmt.Errorf("invalid default engine: %s (must be one of: %s)",
			c.Engines.Default, strings.Join(validEngines, ", "))
	}
	if c.Engines.Fallback != "" && !contains(validEngines[1:], c.Engines.Fallback) {
		return fmt.Errorf("invalid fallback engine: %s (must be one of: %s)",
			c.Engines.Fallback, strings.Join(validEngines[1:], ", "))
	}
	if c.Engines.AutoPageThreshold <= 0 {
		return fmt.Errorf("invalid auto page threshold: %d (must be positive)", c.Engines.AutoPageThreshold)
	}

	if c.Pool.Workers <= 0 {
		return fmt.Errorf("invalid pool workers: %d (must be positive)", c.Pool.Workers)
	}

	if c.Dispatch.PageTimeoutSec <= 0 {
		return fmt.Errorf("invalid page timeout: %d (must be positive)", c.Dispatch.PageTimeoutSec)
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("invalid max attempts: %d (must be positive)", c.Dispatch.MaxAttempts)
	}
	if c.Dispatch.MaxAttemptsCap > 0 && c.Dispatch.MaxAttempts > c.Dispatch.MaxAttemptsCap {
		return fmt.Errorf("max attempts %d exceeds cap %d", c.Dispatch.MaxAttempts, c.Dispatch.MaxAttemptsCap)
	}
	if c.Dispatch.BackoffBaseMs < 0 {
		return fmt.Errorf("invalid backoff base: %d (must not be negative)", c.Dispatch.BackoffBaseMs)
	}

	if c.Render.DPI <= 0 {
		return fmt.Errorf("invalid render dpi: %d (must be positive)", c.Render.DPI)
	}
	if c.Render.MaxDPI > 0 && c.Render.DPI > c.Render.MaxDPI {
		return fmt.Errorf("render dpi %d exceeds maximum %d", c.Render.DPI, c.Render.MaxDPI)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid server timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	return nil
}

// ToRenderConfig converts to document.Config.
func (c *Config) ToRenderConfig() document.Config {
	cfg := document.DefaultConfig()
	cfg.DPI = c.Render.DPI
	if c.Render.MaxDPI > 0 {
		cfg.MaxDPI = c.Render.MaxDPI
	}
	return cfg
}

// ToSelectorConfig converts to engine.SelectorConfig.
func (c *Config) ToSelectorConfig() engine.SelectorConfig {
	cfg := engine.DefaultSelectorConfig()
	cfg.Default = c.Engines.Default
	cfg.Fallback = c.Engines.Fallback
	if c.Engines.AutoPageThreshold > 0 {
		cfg.AutoPageThreshold = c.Engines.AutoPageThreshold
	}
	return cfg
}

// ToDispatchConfig converts to dispatch.Config.
func (c *Config) ToDispatchConfig() dispatch.Config {
	cfg := dispatch.DefaultConfig()
	cfg.PageTimeout = time.Duration(c.Dispatch.PageTimeoutSec) * time.Second
	cfg.MaxAttempts = c.Dispatch.MaxAttempts
	cfg.BackoffBase = time.Duration(c.Dispatch.BackoffBaseMs) * time.Millisecond
	if c.Dispatch.MaxPageTimeoutSec > 0 {
		cfg.MaxPageTimeout = time.Duration(c.Dispatch.MaxPageTimeoutSec) * time.Second
	}
	if c.Dispatch.MaxAttemptsCap > 0 {
		cfg.MaxAttemptsCap = c.Dispatch.MaxAttemptsCap
	}
	return cfg
}

// ToOrchestrateConfig converts to orchestrate.Config.
func (c *Config) ToOrchestrateConfig() orchestrate.Config {
	cfg := orchestrate.DefaultConfig()
	if c.Server.TimeoutSec > 0 {
		cfg.MaxRequestTimeout = time.Duration(c.Server.TimeoutSec) * time.Second
	}
	return cfg
}

// ToTesseractConfig converts to tesseract.Config.
func (c *Config) ToTesseractConfig() tesseract.Config {
	cfg := tesseract.DefaultConfig()
	if len(c.Engines.Tesseract.Languages) > 0 {
		cfg.Languages = c.Engines.Tesseract.Languages
	}
	cfg.TessdataDir = c.Engines.Tesseract.TessdataDir
	return cfg
}

// ToPaddleConfig converts to paddle.Config.
func (c *Config) ToPaddleConfig() paddle.Config {
	cfg := paddle.DefaultConfig()
	cfg.ModelPath = c.Engines.Paddle.ModelPath
	cfg.DictPath = c.Engines.Paddle.DictPath
	cfg.NumThreads = c.Engines.Paddle.NumThreads
	return cfg
}

// ToRemoteConfig converts to remote.Config.
func (c *Config) ToRemoteConfig() remote.Config {
	cfg := remote.DefaultConfig()
	if c.Engines.Remote.BaseURL != "" {
		cfg.BaseURL = c.Engines.Remote.BaseURL
	}
	if c.Engines.Remote.Model != "" {
		cfg.Model = c.Engines.Remote.Model
	}
	if c.Engines.Remote.TimeoutSec > 0 {
		cfg.RequestTimeout = time.Duration(c.Engines.Remote.TimeoutSec) * time.Second
	}
	return cfg
}

// BuildRegistry registers every enabled engine and initializes instances
// for the given worker count.
func (c *Config) BuildRegistry(workers int) *engine.Registry {
	reg := engine.NewRegistry(workers)
	if c.Engines.Tesseract.Enabled {
		tesseract.Register(reg, c.ToTesseractConfig(), c.Engines.Tesseract.Priority)
	}
	if c.Engines.Paddle.Enabled {
		paddle.Register(reg, c.ToPaddleConfig(), c.Engines.Paddle.Priority)
	}
	if c.Engines.Remote.Enabled {
		remote.Register(reg, c.ToRemoteConfig(), c.Engines.Remote.Priority)
	}
	return reg
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
