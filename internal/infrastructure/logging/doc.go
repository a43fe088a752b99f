// Package logging provides structured logging for homecore.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for local development, with service and version
// fields on every record.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log MQTT passwords, InfluxDB tokens or Redis credentials.
package logging
