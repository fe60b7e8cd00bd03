package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks a defaulted configuration for values that would break the
// gateway at runtime. It returns the first problem found.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return fmt.Errorf("server.listen_address %q: %w", cfg.Server.ListenAddress, err)
	}

	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url %q: %w", cfg.Upstream.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url %q: scheme must be http or https", cfg.Upstream.BaseURL)
	}

	if cfg.Stream.MaxBufferBytes <= 0 {
		return fmt.Errorf("stream.max_buffer_bytes must be positive, got %d", cfg.Stream.MaxBufferBytes)
	}
	if cfg.Upstream.MaxPrebufferBytes <= 0 {
		return fmt.Errorf("upstream.max_prebuffer_bytes must be positive, got %d", cfg.Upstream.MaxPrebufferBytes)
	}

	if cfg.Moderation.LowRisk < 0 || cfg.Moderation.LowRisk > 1 {
		return fmt.Errorf("moderation.low_risk %v outside [0, 1]", cfg.Moderation.LowRisk)
	}
	if cfg.Moderation.HighRisk < 0 || cfg.Moderation.HighRisk > 1 {
		return fmt.Errorf("moderation.high_risk %v outside [0, 1]", cfg.Moderation.HighRisk)
	}
	if cfg.Moderation.LowRisk >= cfg.Moderation.HighRisk {
		return fmt.Errorf("moderation.low_risk %v must be below high_risk %v",
			cfg.Moderation.LowRisk, cfg.Moderation.HighRisk)
	}
	if cfg.Moderation.ReviewRate > 1 {
		return fmt.Errorf("moderation.review_rate %v outside [0, 1]", cfg.Moderation.ReviewRate)
	}

	if cfg.Models.MaxProfiles <= 0 {
		return fmt.Errorf("models.max_profiles must be positive, got %d", cfg.Models.MaxProfiles)
	}

	if cfg.Storage.Pool.MaxConns <= 0 {
		return fmt.Errorf("storage.pool.max_conns must be positive, got %d", cfg.Storage.Pool.MaxConns)
	}

	if cfg.Training.Enabled && cfg.Training.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Training.Schedule); err != nil {
			return fmt.Errorf("training.schedule %q: %w", cfg.Training.Schedule, err)
		}
	}

	switch strings.ToLower(cfg.Telemetry.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level %q: must be debug, info, warn, or error", cfg.Telemetry.Logging.Level)
	}
	switch strings.ToLower(cfg.Telemetry.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format %q: must be json or text", cfg.Telemetry.Logging.Format)
	}

	return nil
}
