// Package config handles loading and validating homecore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with HOMECORE_* environment variables
//   - Validation of required fields
//
// Secrets (MQTT password, InfluxDB token, Redis password) should be supplied
// through the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc, _ := cfg.Location()
package config
