package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/moderation"
	"warden-hq/warden/pkg/moderation/model"
	"warden-hq/warden/pkg/moderation/store"
	"warden-hq/warden/pkg/moderation/trainer"
	"warden-hq/warden/pkg/proxy"
	"warden-hq/warden/pkg/telemetry/metrics"
	"warden-hq/warden/pkg/upstream"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("gateway: already started")

// ErrInvalidStartToken is returned when Start is called with a token that
// does not match the one issued by New, or with one already consumed.
var ErrInvalidStartToken = errors.New("gateway: invalid or consumed start token")

// Counters is a read-only snapshot of gateway activity.
type Counters struct {
	ResidentModels    int
	CacheEvictions    uint64
	RecordDrops       uint64
	TrainingSuccesses uint64
	TrainingFailures  uint64
}

// ReleaseReport summarizes one ReleaseUnusedResources pass.
type ReleaseReport struct {
	EvictedModels   []string `json:"evicted_models"`
	IdleConnsClosed int      `json:"idle_conns_closed"`
	PrunedSamples   int64    `json:"pruned_samples"`
}

// Gateway wires and supervises every component of the moderation gateway.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	registry  *store.PoolRegistry
	samples   *store.SampleStore
	decisions *store.DecisionLog

	artifacts *model.ArtifactStore
	cache     *model.Cache
	watcher   *model.ArtifactWatcher

	engine    *moderation.Engine
	scheduler *trainer.Scheduler

	collector *metrics.Collector
	handler   *proxy.Handler

	cacheEvictions atomic.Uint64
	recordDrops    atomic.Uint64
	trainingOK     atomic.Uint64
	trainingFailed atomic.Uint64

	mu          sync.Mutex
	startToken  string
	started     bool
	stopped     bool
	cancelWatch context.CancelFunc
	watchDone   chan struct{}
}

// New wires all components from the configuration. The decision engine's
// recording worker starts immediately; the training scheduler and the
// artifact watcher stay dormant until Start consumes the start token.
func New(cfg *config.Config) (*Gateway, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	g := &Gateway{
		config:     cfg,
		logger:     slog.Default().With("component", "gateway"),
		startToken: uuid.NewString(),
	}

	g.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	g.registry = store.NewPoolRegistry(store.PoolConfig{
		MaxConns:       cfg.Storage.Pool.MaxConns,
		MaxIdleConns:   cfg.Storage.Pool.MaxIdleConns,
		AcquireTimeout: cfg.Storage.Pool.AcquireTimeout,
		OnExhausted:    g.collector.RecordPoolExhausted,
	})

	samples, err := store.NewSampleStore(g.registry, store.SampleStoreConfig{
		Path: cfg.Storage.SamplesPath,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: open sample store: %w", err)
	}
	g.samples = samples

	decisions, err := store.NewDecisionLog(g.registry, cfg.Storage.DecisionsPath)
	if err != nil {
		g.registry.DrainAll()
		return nil, fmt.Errorf("gateway: open decision log: %w", err)
	}
	g.decisions = decisions

	artifacts, err := model.NewArtifactStore(cfg.Models.Dir)
	if err != nil {
		g.registry.DrainAll()
		return nil, fmt.Errorf("gateway: open artifact store: %w", err)
	}
	g.artifacts = artifacts

	g.cache = model.NewCache(artifacts,
		model.WithMaxProfiles(cfg.Models.MaxProfiles),
		model.WithEvictHook(func(string) {
			g.cacheEvictions.Add(1)
			g.collector.RecordCacheEviction()
		}))

	if cfg.Models.Watch {
		watcher, err := model.NewArtifactWatcher(artifacts, g.cache, cfg.Models.WatchDebounce)
		if err != nil {
			g.registry.DrainAll()
			return nil, fmt.Errorf("gateway: create artifact watcher: %w", err)
		}
		g.watcher = watcher
	}

	g.engine = moderation.NewEngine(g.cache, samples, decisions,
		moderation.EngineConfig{
			LowRisk:      cfg.Moderation.LowRisk,
			HighRisk:     cfg.Moderation.HighRisk,
			ReviewRate:   cfg.Moderation.ReviewRate,
			RecordBuffer: cfg.Moderation.RecordBuffer,
		},
		moderation.WithDropHook(func() {
			g.recordDrops.Add(1)
			g.collector.RecordDrop()
		}))

	g.scheduler = trainer.NewScheduler(samples, artifacts, g.cache,
		trainer.Config{
			Schedule:        cfg.Training.Schedule,
			Workers:         cfg.Training.Workers,
			LockTTL:         cfg.Training.LockTTL,
			SamplesPerLabel: cfg.Training.SamplesPerLabel,
			KeepPerLabel:    cfg.Training.KeepPerLabel,
			Policy: trainer.DuePolicy{
				MinSamplesPerLabel: cfg.Training.MinSamplesPerLabel,
				RetrainInterval:    cfg.Training.RetrainInterval,
				FailureCooldown:    cfg.Training.FailureCooldown,
			},
			Train: model.TrainConfig{Epochs: cfg.Training.Epochs},
		},
		trainer.WithResultHook(func(profile string, err error, duration time.Duration) {
			if err == nil {
				g.trainingOK.Add(1)
			} else {
				g.trainingFailed.Add(1)
			}
			g.collector.RecordTrainingRun(err == nil, duration)
		}))

	forwarder := upstream.NewForwarder(upstream.Config{
		BaseURL:           cfg.Upstream.BaseURL,
		Timeout:           cfg.Upstream.ResponseHeaderTimeout,
		MaxPrebufferBytes: cfg.Upstream.MaxPrebufferBytes,
		MaxIdleConns:      cfg.Upstream.MaxIdleConns,
	})

	g.handler = proxy.NewHandler(proxy.HandlerConfig{
		MaxBufferBytes: cfg.Stream.MaxBufferBytes,
		DefaultProfile: cfg.Moderation.DefaultProfile,
	}, forwarder, g.engine, g.collector)

	return g, nil
}

// StartToken returns the one-shot token Start requires. It is valid until
// the first successful Start.
func (g *Gateway) StartToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startToken
}

// Start consumes the start token and brings up the background components:
// the training scheduler (when enabled) and the artifact watcher. A second
// call fails regardless of the token presented.
func (g *Gateway) Start(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		return ErrAlreadyStarted
	}
	if token == "" || token != g.startToken {
		return ErrInvalidStartToken
	}
	g.startToken = ""

	if g.config.Training.Enabled {
		if err := g.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if g.watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		g.cancelWatch = cancel
		g.watchDone = make(chan struct{})
		go func() {
			defer close(g.watchDone)
			if err := g.watcher.Watch(watchCtx); err != nil {
				g.logger.Error("artifact watcher exited", "error", err)
			}
		}()
	}

	g.started = true
	g.logger.Info("gateway started",
		"training_enabled", g.config.Training.Enabled,
		"artifact_watch", g.watcher != nil)
	return nil
}

// Shutdown stops background components, drains the recording queue, and
// closes the storage pools. It is idempotent; the context bounds the wait.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	cancelWatch := g.cancelWatch
	watchDone := g.watchDone
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if cancelWatch != nil {
			cancelWatch()
			<-watchDone
		}
		if g.watcher != nil {
			g.watcher.Stop()
		}
		g.scheduler.Stop()
		g.engine.Close()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := g.registry.DrainAll(); err != nil {
		return fmt.Errorf("gateway: drain storage pools: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// ReleaseUnusedResources sheds memory on demand: models idle past maxIdle
// are evicted, pooled idle database connections are closed, and each
// profile's sample table is pruned to the configured retention. The gateway
// never runs this on its own clock; callers decide when memory pressure
// warrants it.
func (g *Gateway) ReleaseUnusedResources(ctx context.Context, maxIdle time.Duration) (ReleaseReport, error) {
	report := ReleaseReport{
		EvictedModels:   g.cache.EvictIdle(maxIdle),
		IdleConnsClosed: g.registry.ReleaseIdle(),
	}

	if keep := g.config.Training.KeepPerLabel; keep > 0 {
		profiles, err := g.samples.Profiles(ctx)
		if err != nil {
			return report, fmt.Errorf("gateway: list profiles for prune: %w", err)
		}
		for _, profile := range profiles {
			pruned, err := g.samples.Prune(ctx, profile, keep)
			if err != nil {
				return report, fmt.Errorf("gateway: prune %q: %w", profile, err)
			}
			report.PrunedSamples += pruned
		}
	}

	g.logger.Info("released unused resources",
		"evicted_models", len(report.EvictedModels),
		"idle_conns_closed", report.IdleConnsClosed,
		"pruned_samples", report.PrunedSamples)
	return report, nil
}

// Counters returns a point-in-time activity snapshot.
func (g *Gateway) Counters() Counters {
	return Counters{
		ResidentModels:    g.cache.Len(),
		CacheEvictions:    g.cacheEvictions.Load(),
		RecordDrops:       g.recordDrops.Load(),
		TrainingSuccesses: g.trainingOK.Load(),
		TrainingFailures:  g.trainingFailed.Load(),
	}
}

// StreamHandler returns the moderated streaming entry point.
func (g *Gateway) StreamHandler() http.Handler {
	return g.handler
}

// MetricsHandler returns the Prometheus scrape handler for the gateway's
// private registry.
func (g *Gateway) MetricsHandler() http.Handler {
	return g.collector.Handler()
}

// Decisions exposes the decision log for operational queries.
func (g *Gateway) Decisions() *store.DecisionLog {
	return g.decisions
}

// TriggerSweep runs one training sweep immediately.
func (g *Gateway) TriggerSweep(ctx context.Context) error {
	return g.scheduler.TriggerSweep(ctx)
}
