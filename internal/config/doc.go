// Package config provides 12-factor configuration management for dwim.
//
// Configuration is layered, later layers win:
//  1. Defaults (Default)
//  2. An optional config file, TOML or YAML by extension (--config / DWIM_CONFIG)
//  3. Environment variables
//  4. Command-line flags, applied by cmd/dwim after Load returns
//
// Configuration Sections:
//   - Shell: which shell to spawn, where, and how long teardown may take
//   - Translator: the OpenAI-compatible completion endpoint and prompt settings
//   - Loop: interactive loop behaviour (always-run)
//   - Logging: log level, format and destination
//   - Debug: optional metrics/health endpoint
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	fmt.Println(cfg.Shell.Path)
//
// Environment Variables:
//   - SHELL, DWIM_WORKDIR, DWIM_SHUTDOWN_TIMEOUT
//   - OPENAI_API_KEY, OPENAI_BASE_URL, DWIM_MODEL, DWIM_TIMEOUT, DWIM_RETRIES,
//     DWIM_RATE_LIMIT, DWIM_MAX_CONTEXT, DWIM_PROMPTS
//   - DWIM_ALWAYS_RUN
//   - DWIM_LOG_LEVEL, DWIM_LOG_DEV, DWIM_LOG_OUTPUT
//   - DWIM_METRICS_ADDR
package config
