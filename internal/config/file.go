package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for config files. Zero values mean "not set";
// durations are strings so both formats decode them the same way.
type fileConfig struct {
	Shell struct {
		Path            string `toml:"path" yaml:"path"`
		WorkDir         string `toml:"workdir" yaml:"workdir"`
		ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `toml:"shell" yaml:"shell"`
	Translator struct {
		APIKey      string  `toml:"api_key" yaml:"api_key"`
		BaseURL     string  `toml:"base_url" yaml:"base_url"`
		Model       string  `toml:"model" yaml:"model"`
		Timeout     string  `toml:"timeout" yaml:"timeout"`
		Retries     *int    `toml:"retries" yaml:"retries"`
		RateLimit   float64 `toml:"rate_limit" yaml:"rate_limit"`
		MaxContext  *int    `toml:"max_context" yaml:"max_context"`
		PromptsPath string  `toml:"prompts" yaml:"prompts"`
	} `toml:"translator" yaml:"translator"`
	Loop struct {
		AlwaysRun *bool `toml:"always_run" yaml:"always_run"`
	} `toml:"loop" yaml:"loop"`
	Logging struct {
		Level       string `toml:"level" yaml:"level"`
		Development *bool  `toml:"development" yaml:"development"`
		Output      string `toml:"output" yaml:"output"`
	} `toml:"logging" yaml:"logging"`
	Debug struct {
		MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
	} `toml:"debug" yaml:"debug"`
}

// loadFile decodes a TOML or YAML config file and overlays it onto cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", ext)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Shell.Path, fc.Shell.Path)
	setString(&cfg.Shell.WorkDir, fc.Shell.WorkDir)
	if err := setDuration(&cfg.Shell.ShutdownTimeout, fc.Shell.ShutdownTimeout, "shell.shutdown_timeout"); err != nil {
		return err
	}

	setString(&cfg.Translator.APIKey, fc.Translator.APIKey)
	setString(&cfg.Translator.BaseURL, fc.Translator.BaseURL)
	setString(&cfg.Translator.Model, fc.Translator.Model)
	if err := setDuration(&cfg.Translator.Timeout, fc.Translator.Timeout, "translator.timeout"); err != nil {
		return err
	}
	if fc.Translator.Retries != nil {
		cfg.Translator.Retries = *fc.Translator.Retries
	}
	if fc.Translator.RateLimit != 0 {
		cfg.Translator.RateLimit = fc.Translator.RateLimit
	}
	if fc.Translator.MaxContext != nil {
		cfg.Translator.MaxContext = *fc.Translator.MaxContext
	}
	setString(&cfg.Translator.PromptsPath, fc.Translator.PromptsPath)

	if fc.Loop.AlwaysRun != nil {
		cfg.Loop.AlwaysRun = *fc.Loop.AlwaysRun
	}

	setString(&cfg.Logging.Level, fc.Logging.Level)
	if fc.Logging.Development != nil {
		cfg.Logging.Development = *fc.Logging.Development
	}
	setString(&cfg.Logging.Output, fc.Logging.Output)

	setString(&cfg.Debug.MetricsAddr, fc.Debug.MetricsAddr)
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}
