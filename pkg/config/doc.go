// Package config defines the gateway's YAML configuration: the HTTP server,
// the upstream connection, streaming limits, moderation thresholds, model
// storage, the sample databases, background training, and telemetry.
//
// Loading applies defaults first, then optional WARDEN_* environment
// overrides, then validation, so a partially specified file always yields a
// complete, checked configuration.
package config
