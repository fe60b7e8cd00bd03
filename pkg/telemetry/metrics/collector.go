package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"warden-hq/warden/pkg/config"
)

// Collector registers and records every gateway metric against one
// Prometheus registry. All Record methods are cheap and safe for use on the
// streaming hot path; a disabled config turns them into no-ops.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	streamsTotal    *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
	overflowsTotal  prometheus.Counter
	upstreamRejects *prometheus.CounterVec

	decisionsTotal  *prometheus.CounterVec
	redactionsTotal *prometheus.CounterVec
	recordDrops     prometheus.Counter

	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram

	cacheEvictions prometheus.Counter
	poolExhausted  prometheus.Counter
}

// NewCollector creates a collector. A nil registry gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = config.DefaultMetricsConfig()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "warden"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_total",
				Help:      "Total number of proxied streams by terminal status",
			},
			[]string{"status"},
		),
		streamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_duration_seconds",
				Help:      "Wall time of proxied streams in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"status"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_total",
				Help:      "Total number of framed events relayed downstream",
			},
			[]string{"profile"},
		),
		overflowsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "framer_overflows_total",
				Help:      "Streams aborted because the frame buffer hit its byte cap",
			},
		),
		upstreamRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_rejects_total",
				Help:      "Upstream responses rejected before relaying, by kind",
			},
			[]string{"kind"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Moderation decisions by profile and verdict",
			},
			[]string{"profile", "verdict"},
		),
		redactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "redactions_total",
				Help:      "Events redacted from the downstream relay",
			},
			[]string{"profile"},
		),
		recordDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "record_drops_total",
				Help:      "Decision records shed because the recording queue was full",
			},
		),
		trainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "training_runs_total",
				Help:      "Completed training runs by result",
			},
			[]string{"result"},
		),
		trainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "training_duration_seconds",
				Help:      "Wall time of training runs in seconds",
				Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900},
			},
		),
		cacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "model_cache_evictions_total",
				Help:      "Classifiers evicted from the model cache",
			},
		),
		poolExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_exhausted_total",
				Help:      "Storage operations failed because the connection pool was full",
			},
		),
	}

	registry.MustRegister(
		c.streamsTotal,
		c.streamDuration,
		c.eventsTotal,
		c.overflowsTotal,
		c.upstreamRejects,
		c.decisionsTotal,
		c.redactionsTotal,
		c.recordDrops,
		c.trainingRuns,
		c.trainingDuration,
		c.cacheEvictions,
		c.poolExhausted,
	)
	return c
}

// RecordStream records one finished stream. status is "completed",
// "overflow", "upstream_error", or "cancelled".
func (c *Collector) RecordStream(status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.streamsTotal.WithLabelValues(status).Inc()
	c.streamDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordEvent counts one relayed event.
func (c *Collector) RecordEvent(profile string) {
	if !c.config.Enabled {
		return
	}
	c.eventsTotal.WithLabelValues(profile).Inc()
}

// RecordOverflow counts a stream aborted on the frame buffer cap.
func (c *Collector) RecordOverflow() {
	if !c.config.Enabled {
		return
	}
	c.overflowsTotal.Inc()
}

// RecordUpstreamReject counts an upstream response rejected before relay.
func (c *Collector) RecordUpstreamReject(kind string) {
	if !c.config.Enabled {
		return
	}
	c.upstreamRejects.WithLabelValues(kind).Inc()
}

// RecordDecision counts one moderation decision.
func (c *Collector) RecordDecision(profile, verdict string) {
	if !c.config.Enabled {
		return
	}
	c.decisionsTotal.WithLabelValues(profile, verdict).Inc()
}

// RecordRedaction counts one event withheld from the downstream relay.
func (c *Collector) RecordRedaction(profile string) {
	if !c.config.Enabled {
		return
	}
	c.redactionsTotal.WithLabelValues(profile).Inc()
}

// RecordDrop counts one shed decision record.
func (c *Collector) RecordDrop() {
	if !c.config.Enabled {
		return
	}
	c.recordDrops.Inc()
}

// RecordTrainingRun records one finished training run.
func (c *Collector) RecordTrainingRun(success bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	c.trainingRuns.WithLabelValues(result).Inc()
	c.trainingDuration.Observe(duration.Seconds())
}

// RecordCacheEviction counts one evicted classifier.
func (c *Collector) RecordCacheEviction() {
	if !c.config.Enabled {
		return
	}
	c.cacheEvictions.Inc()
}

// RecordPoolExhausted counts one acquire that failed on a full pool.
func (c *Collector) RecordPoolExhausted() {
	if !c.config.Enabled {
		return
	}
	c.poolExhausted.Inc()
}

// Registry returns the backing Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
