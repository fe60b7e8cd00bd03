package moderation

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"warden-hq/warden/pkg/moderation/model"
	"warden-hq/warden/pkg/moderation/store"
)

// EngineConfig tunes decision thresholds and the recording queue.
type EngineConfig struct {
	// LowRisk is the upper bound of the confident-pass band.
	// Default: 0.2.
	LowRisk float64

	// HighRisk is the lower bound of the confident-violation band. Scores
	// between LowRisk and HighRisk are uncertain. Default: 0.8.
	HighRisk float64

	// ReviewRate is the fraction of confident decisions sampled for
	// review and future training. Uncertain and model-absent decisions
	// are always sampled. Negative disables confident-decision sampling.
	// Default: 0.05.
	ReviewRate float64

	// RecordBuffer is the recording queue depth. Default: 256.
	RecordBuffer int
}

func (c *EngineConfig) applyDefaults() {
	if c.LowRisk <= 0 {
		c.LowRisk = 0.2
	}
	if c.HighRisk <= 0 || c.HighRisk <= c.LowRisk {
		c.HighRisk = 0.8
	}
	if c.ReviewRate < 0 {
		c.ReviewRate = 0
	} else if c.ReviewRate == 0 {
		c.ReviewRate = 0.05
	}
	if c.RecordBuffer <= 0 {
		c.RecordBuffer = 256
	}
}

type recordJob struct {
	sample   *store.Sample
	decision *store.DecisionRecord
}

// Engine evaluates text against cached per-profile classifiers.
type Engine struct {
	cache     *model.Cache
	samples   *store.SampleStore
	decisions *store.DecisionLog
	config    EngineConfig
	logger    *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	recordCh chan recordJob
	onDrop   func()
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDropHook registers a callback invoked whenever a record is shed
// because the recording queue is full.
func WithDropHook(fn func()) EngineOption {
	return func(e *Engine) { e.onDrop = fn }
}

// NewEngine builds an engine and starts its recording worker.
func NewEngine(cache *model.Cache, samples *store.SampleStore, decisions *store.DecisionLog, config EngineConfig, opts ...EngineOption) *Engine {
	config.applyDefaults()

	e := &Engine{
		cache:     cache,
		samples:   samples,
		decisions: decisions,
		config:    config,
		logger:    slog.Default().With("component", "moderation.engine"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		recordCh:  make(chan recordJob, config.RecordBuffer),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.recordLoop()
	return e
}

// Evaluate scores one unit of text for a profile. It never blocks on model
// loading or on storage: a profile without a resident classifier yields a
// neutral pass marked ModelAbsent, and recording is queued asynchronously.
func (e *Engine) Evaluate(requestID, profile, text string) Decision {
	classifier, ok := e.cache.Get(profile)
	if !ok {
		// No model yet. Let traffic through and always sample, so the
		// profile accumulates training material to bootstrap from.
		decision := Decision{Verdict: VerdictPass, ModelAbsent: true, Sampled: true}
		e.record(requestID, profile, text, decision)
		return decision
	}

	score := classifier.Score(text)
	decision := Decision{Score: score}

	switch {
	case score >= e.config.HighRisk:
		decision.Verdict = VerdictViolation
		decision.Sampled = e.reviewDraw()
	case score <= e.config.LowRisk:
		decision.Verdict = VerdictPass
		decision.Sampled = e.reviewDraw()
	default:
		// The middle band passes but is always kept for review.
		decision.Verdict = VerdictPass
		decision.Uncertain = true
		decision.Sampled = true
	}

	e.record(requestID, profile, text, decision)
	return decision
}

// Close stops the recording worker after draining queued records.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		<-e.doneCh
	})
}

func (e *Engine) reviewDraw() bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < e.config.ReviewRate
}

// record queues the decision trail without ever blocking the caller. A full
// queue sheds the record and counts the drop.
func (e *Engine) record(requestID, profile, text string, decision Decision) {
	job := recordJob{
		decision: &store.DecisionRecord{
			RequestID:   requestID,
			Profile:     profile,
			Verdict:     string(decision.Verdict),
			Score:       decision.Score,
			ModelAbsent: decision.ModelAbsent,
			Uncertain:   decision.Uncertain,
			Sampled:     decision.Sampled,
			DecidedAt:   time.Now().UTC(),
		},
	}
	if decision.Sampled {
		label := store.LabelPass
		if decision.Verdict == VerdictViolation {
			label = store.LabelViolation
		}
		job.sample = &store.Sample{
			Profile: profile,
			Text:    text,
			Label:   label,
			Score:   decision.Score,
			Source:  "stream",
		}
	}

	select {
	case e.recordCh <- job:
	default:
		if e.onDrop != nil {
			e.onDrop()
		}
		e.logger.Warn("recording queue full, decision dropped",
			"profile", profile,
			"request_id", requestID)
	}
}

func (e *Engine) recordLoop() {
	defer close(e.doneCh)
	for {
		select {
		case job := <-e.recordCh:
			e.persist(job)
		case <-e.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case job := <-e.recordCh:
					e.persist(job)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) persist(job recordJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.decisions != nil {
		if err := e.decisions.Append(ctx, job.decision); err != nil {
			e.logger.Error("appending decision failed",
				"profile", job.decision.Profile,
				"error", err)
		}
	}
	if job.sample != nil && e.samples != nil {
		if err := e.samples.Record(ctx, job.sample); err != nil {
			e.logger.Error("recording sample failed",
				"profile", job.sample.Profile,
				"error", err)
		}
	}
}
