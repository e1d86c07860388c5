package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultShell   = "/bin/bash"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "DWIM_CONFIG"

// Config holds all application configuration.
type Config struct {
	Shell      ShellConfig
	Translator TranslatorConfig
	Loop       LoopConfig
	Logging    LogConfig
	Debug      DebugConfig
}

// ShellConfig holds the persistent shell settings.
type ShellConfig struct {
	Path            string        `envconfig:"SHELL"`
	WorkDir         string        `envconfig:"DWIM_WORKDIR"`
	ShutdownTimeout time.Duration `envconfig:"DWIM_SHUTDOWN_TIMEOUT"`
}

// TranslatorConfig holds the completion service settings.
type TranslatorConfig struct {
	APIKey      string        `envconfig:"OPENAI_API_KEY"`
	BaseURL     string        `envconfig:"OPENAI_BASE_URL"`
	Model       string        `envconfig:"DWIM_MODEL"`
	Timeout     time.Duration `envconfig:"DWIM_TIMEOUT"`
	Retries     int           `envconfig:"DWIM_RETRIES"`
	RateLimit   float64       `envconfig:"DWIM_RATE_LIMIT"`
	MaxContext  int           `envconfig:"DWIM_MAX_CONTEXT"`
	PromptsPath string        `envconfig:"DWIM_PROMPTS"`
}

// LoopConfig holds interactive loop settings.
type LoopConfig struct {
	AlwaysRun bool `envconfig:"DWIM_ALWAYS_RUN"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"DWIM_LOG_LEVEL"`
	Development bool   `envconfig:"DWIM_LOG_DEV"`
	Output      string `envconfig:"DWIM_LOG_OUTPUT"`
}

// DebugConfig holds the optional debug server configuration.
type DebugConfig struct {
	MetricsAddr string `envconfig:"DWIM_METRICS_ADDR"`
}

// Load builds configuration from defaults, the optional config file and the
// environment. An empty path falls back to $DWIM_CONFIG; no file is fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.applyFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			Path:            DefaultShell,
			ShutdownTimeout: 2 * time.Second,
		},
		Translator: TranslatorConfig{
			BaseURL:    DefaultBaseURL,
			Model:      DefaultModel,
			Timeout:    30 * time.Second,
			Retries:    3,
			MaxContext: 4000,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Shell.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shell shutdown timeout must be positive, got %s", c.Shell.ShutdownTimeout))
	}
	if c.Translator.Retries < 0 {
		errs = append(errs, fmt.Errorf("translator retries must not be negative, got %d", c.Translator.Retries))
	}
	if c.Translator.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("translator timeout must be positive, got %s", c.Translator.Timeout))
	}
	if c.Translator.MaxContext < 0 {
		errs = append(errs, fmt.Errorf("max context must not be negative, got %d", c.Translator.MaxContext))
	}
	if c.Translator.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.Translator.RateLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyFallbacks restores defaults for values the environment set to empty.
// SHELL="" in particular must still yield a runnable shell.
func (c *Config) applyFallbacks() {
	def := Default()
	if c.Shell.Path == "" {
		c.Shell.Path = def.Shell.Path
	}
	if c.Translator.BaseURL == "" {
		c.Translator.BaseURL = def.Translator.BaseURL
	}
	if c.Translator.Model == "" {
		c.Translator.Model = def.Translator.Model
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
