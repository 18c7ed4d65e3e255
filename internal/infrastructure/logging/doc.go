// Package logging provides structured logging for the Hüttenzauber controller.
//
// This package wraps Go's standard log/slog package so every component
// (effects, runner, trigger, supervisor) logs with the same fields.
//
// # Features
//
//   - JSON output for the installation (journald friendly)
//   - Text output for bench testing at a terminal
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("scene started", "scene", name, "run_id", id)
//
// Scene-scoped loggers carry the scene and run ID:
//
//	sceneLog := logger.With("scene", name, "run_id", id)
package logging
