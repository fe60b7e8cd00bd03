package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies defaults and WARDEN_*
// environment overrides, validates, and returns the result. An empty path
// yields the defaulted configuration without touching the filesystem.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies WARDEN_SECTION_FIELD environment variables over
// the file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("WARDEN_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("WARDEN_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("WARDEN_STREAM_MAX_BUFFER_BYTES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Stream.MaxBufferBytes = i
		}
	}
	if val := os.Getenv("WARDEN_MODERATION_DEFAULT_PROFILE"); val != "" {
		cfg.Moderation.DefaultProfile = val
	}
	if val := os.Getenv("WARDEN_MODELS_DIR"); val != "" {
		cfg.Models.Dir = val
	}
	if val := os.Getenv("WARDEN_STORAGE_SAMPLES_PATH"); val != "" {
		cfg.Storage.SamplesPath = val
	}
	if val := os.Getenv("WARDEN_STORAGE_DECISIONS_PATH"); val != "" {
		cfg.Storage.DecisionsPath = val
	}
	if val := os.Getenv("WARDEN_TRAINING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Training.Enabled = b
		}
	}
	if val := os.Getenv("WARDEN_TRAINING_SCHEDULE"); val != "" {
		cfg.Training.Schedule = val
	}
	if val := os.Getenv("WARDEN_TRAINING_RETRAIN_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Training.RetrainInterval = d
		}
	}
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("WARDEN_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
}
