// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: console output, colored when written to a terminal
//
// dwim owns the user's terminal, so log output defaults to a file under the
// user cache directory rather than stdout. Set the output to "stderr" while
// debugging a session interactively.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Named("shell").Info("session started", zap.String("shell", "/bin/bash"))
//	logger.Warn("teardown diagnostics", zap.Error(err))
package logging
