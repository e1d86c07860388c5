// Package main is the entry point for dwim (Do What I Mean), an interactive
// shell driven by plain-language requests.
//
// Architecture:
//
//	prompt (liner) → translator (chat completions) → confirm → executor → persistent shell
//	                                                              ↑
//	                                          supervisor (Ctrl-C restarts the shell)
//
// Configuration:
//   - Defaults
//   - Optional TOML or YAML file (--config or DWIM_CONFIG)
//   - Environment variables (OPENAI_API_KEY, SHELL, DWIM_*)
//   - CLI flags (override everything else)
//
// Usage:
//
//	dwim
//	dwim --always --model gpt-4o-mini
//	dwim --dev --metrics-addr 127.0.0.1:9464
//
// Signals:
//   - SIGINT: cancel the running request and restart the shell
//   - SIGTERM, SIGHUP: terminate the shell and exit
package main
