package config

import "time"

// Config is the root configuration for the warden gateway.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Upstream configures the connection to the upstream AI provider.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Stream bounds the per-connection SSE framer.
	Stream StreamConfig `yaml:"stream"`

	// Moderation tunes decision thresholds and recording.
	Moderation ModerationConfig `yaml:"moderation"`

	// Models configures on-disk model artifacts and the in-memory cache.
	Models ModelsConfig `yaml:"models"`

	// Storage configures the sample and decision databases.
	Storage StorageConfig `yaml:"storage"`

	// Training configures the background retraining scheduler.
	Training TrainingConfig `yaml:"training"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum wait for graceful shutdown before
	// in-flight streams are cut.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig contains configuration for the upstream AI provider.
type UpstreamConfig struct {
	// BaseURL is the provider endpoint requests are forwarded to.
	// Example: "https://api.example.com"
	BaseURL string `yaml:"base_url"`

	// ResponseHeaderTimeout bounds the wait for upstream response headers.
	// The stream body itself is never timed out.
	// Default: 30s
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// MaxPrebufferBytes caps the bytes read while validating that an
	// upstream response without a declared event-stream content type is
	// structurally SSE.
	// Default: 1024
	MaxPrebufferBytes int `yaml:"max_prebuffer_bytes"`

	// MaxIdleConns caps pooled upstream connections.
	// Default: 32
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// StreamConfig bounds the per-connection framer.
type StreamConfig struct {
	// MaxBufferBytes is the hard cap on buffered bytes awaiting an event
	// delimiter. A stream exceeding it is terminated.
	// Default: 2097152 (2MB)
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
}

// ModerationConfig tunes the decision engine.
type ModerationConfig struct {
	// DefaultProfile is used when a request names no profile.
	// Default: "default"
	DefaultProfile string `yaml:"default_profile"`

	// LowRisk is the upper bound of the confident-pass score band.
	// Default: 0.2
	LowRisk float64 `yaml:"low_risk"`

	// HighRisk is the lower bound of the confident-violation score band.
	// Default: 0.8
	HighRisk float64 `yaml:"high_risk"`

	// ReviewRate is the fraction of confident decisions sampled for
	// review. Default: 0.05
	ReviewRate float64 `yaml:"review_rate"`

	// RecordBuffer is the asynchronous recording queue depth.
	// Default: 256
	RecordBuffer int `yaml:"record_buffer"`
}

// ModelsConfig configures artifacts and the model cache.
type ModelsConfig struct {
	// Dir is the directory holding model artifacts.
	// Default: "data/models"
	Dir string `yaml:"dir"`

	// MaxProfiles bounds resident classifiers in memory.
	// Default: 64
	MaxProfiles int `yaml:"max_profiles"`

	// Watch enables the filesystem watcher that invalidates cached models
	// when artifacts change on disk.
	// Default: true
	Watch bool `yaml:"watch"`

	// WatchDebounce collapses rapid artifact writes per profile.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// StorageConfig configures the SQLite databases.
type StorageConfig struct {
	// SamplesPath is the sample database file.
	// Default: "data/samples.db"
	SamplesPath string `yaml:"samples_path"`

	// DecisionsPath is the decision log database file.
	// Default: "data/decisions.db"
	DecisionsPath string `yaml:"decisions_path"`

	// Pool bounds database connections.
	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig bounds a database connection pool.
type PoolConfig struct {
	// MaxConns is the hard cap on open connections per database.
	// Default: 8
	MaxConns int `yaml:"max_conns"`

	// MaxIdleConns is the soft cap on pooled idle connections.
	// Default: 4
	MaxIdleConns int `yaml:"max_idle_conns"`

	// AcquireTimeout bounds the wait for a free connection before the
	// operation fails fast.
	// Default: 2s
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// TrainingConfig configures the background retraining scheduler.
type TrainingConfig struct {
	// Enabled starts the scheduler with the server.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a standard cron expression for the sweep.
	// Default: "@every 10m"
	Schedule string `yaml:"schedule"`

	// Workers bounds concurrent training runs.
	// Default: 2
	Workers int `yaml:"workers"`

	// LockTTL is the horizon past which a training lock counts as
	// abandoned and is reclaimed.
	// Default: 2h
	LockTTL time.Duration `yaml:"lock_ttl"`

	// MinSamplesPerLabel is the floor below which a profile never trains.
	// Default: 25
	MinSamplesPerLabel int `yaml:"min_samples_per_label"`

	// RetrainInterval is the minimum age of the published model before a
	// retrain is considered.
	// Default: 1h
	RetrainInterval time.Duration `yaml:"retrain_interval"`

	// FailureCooldown holds a profile back after a failed run.
	// Default: 30m
	FailureCooldown time.Duration `yaml:"failure_cooldown"`

	// SamplesPerLabel is the balanced draw size per label per run.
	// Default: 500
	SamplesPerLabel int `yaml:"samples_per_label"`

	// KeepPerLabel prunes each profile down to this many samples per
	// label after a successful run. Zero disables pruning.
	// Default: 5000
	KeepPerLabel int `yaml:"keep_per_label"`

	// Epochs is the number of fitting passes per run.
	// Default: 5
	Epochs int `yaml:"epochs"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metric recording on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "warden"
	Namespace string `yaml:"namespace"`

	// Subsystem is the second metric name segment.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`
}
