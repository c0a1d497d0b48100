// Package logging provides structured logging for shadowsync.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the agent.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional append-only log file
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "/var/log/shadowsync/agent.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, version)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("shadow connected", "thing", thing)
//
// Never log MQTT passwords, InfluxDB tokens, or key material.
package logging
