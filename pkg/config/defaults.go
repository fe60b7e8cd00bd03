package config

import "time"

// DefaultConfig returns a fully defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// DefaultMetricsConfig returns the metrics defaults on their own, for
// components that take only a metrics section.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:   true,
		Namespace: "warden",
		Subsystem: "gateway",
	}
}

// ApplyDefaults fills every unset field in place. Explicit zero values that
// are meaningful (for example training.keep_per_label: 0) survive only where
// the field documents that.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8080"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Upstream.ResponseHeaderTimeout == 0 {
		cfg.Upstream.ResponseHeaderTimeout = 30 * time.Second
	}
	if cfg.Upstream.MaxPrebufferBytes == 0 {
		cfg.Upstream.MaxPrebufferBytes = 1024
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = 32
	}

	if cfg.Stream.MaxBufferBytes == 0 {
		cfg.Stream.MaxBufferBytes = 2 << 20
	}

	if cfg.Moderation.DefaultProfile == "" {
		cfg.Moderation.DefaultProfile = "default"
	}
	if cfg.Moderation.LowRisk == 0 {
		cfg.Moderation.LowRisk = 0.2
	}
	if cfg.Moderation.HighRisk == 0 {
		cfg.Moderation.HighRisk = 0.8
	}
	if cfg.Moderation.ReviewRate == 0 {
		cfg.Moderation.ReviewRate = 0.05
	}
	if cfg.Moderation.RecordBuffer == 0 {
		cfg.Moderation.RecordBuffer = 256
	}

	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "data/models"
	}
	if cfg.Models.MaxProfiles == 0 {
		cfg.Models.MaxProfiles = 64
	}
	if cfg.Models.WatchDebounce == 0 {
		cfg.Models.Watch = true
		cfg.Models.WatchDebounce = 100 * time.Millisecond
	}

	if cfg.Storage.SamplesPath == "" {
		cfg.Storage.SamplesPath = "data/samples.db"
	}
	if cfg.Storage.DecisionsPath == "" {
		cfg.Storage.DecisionsPath = "data/decisions.db"
	}
	if cfg.Storage.Pool.MaxConns == 0 {
		cfg.Storage.Pool.MaxConns = 8
	}
	if cfg.Storage.Pool.MaxIdleConns == 0 {
		cfg.Storage.Pool.MaxIdleConns = 4
	}
	if cfg.Storage.Pool.AcquireTimeout == 0 {
		cfg.Storage.Pool.AcquireTimeout = 2 * time.Second
	}

	if cfg.Training.Schedule == "" {
		cfg.Training.Enabled = true
		cfg.Training.Schedule = "@every 10m"
	}
	if cfg.Training.Workers == 0 {
		cfg.Training.Workers = 2
	}
	if cfg.Training.LockTTL == 0 {
		cfg.Training.LockTTL = 2 * time.Hour
	}
	if cfg.Training.MinSamplesPerLabel == 0 {
		cfg.Training.MinSamplesPerLabel = 25
	}
	if cfg.Training.RetrainInterval == 0 {
		cfg.Training.RetrainInterval = time.Hour
	}
	if cfg.Training.FailureCooldown == 0 {
		cfg.Training.FailureCooldown = 30 * time.Minute
	}
	if cfg.Training.SamplesPerLabel == 0 {
		cfg.Training.SamplesPerLabel = 500
	}
	if cfg.Training.KeepPerLabel == 0 {
		cfg.Training.KeepPerLabel = 5000
	}
	if cfg.Training.Epochs == 0 {
		cfg.Training.Epochs = 5
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.Namespace = "warden"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "gateway"
	}
}
