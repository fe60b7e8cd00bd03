package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"warden-hq/warden/pkg/moderation/model"
	"warden-hq/warden/pkg/moderation/store"
)

// ProfileState is a profile's position in the training lifecycle.
type ProfileState string

const (
	StateIdle     ProfileState = "idle"
	StateTraining ProfileState = "training"
	StateFailed   ProfileState = "failed"
)

// Config tunes the training scheduler.
type Config struct {
	// Schedule is a standard cron expression for the sweep. Empty disables
	// scheduled sweeps; TriggerSweep still works.
	Schedule string

	// Workers bounds concurrent training runs. Default: 2.
	Workers int

	// LockTTL is the horizon past which a held training lock counts as
	// abandoned. Default: 2 hours.
	LockTTL time.Duration

	// SamplesPerLabel is the balanced draw size per label. Default: 500.
	SamplesPerLabel int

	// KeepPerLabel prunes each profile's sample table down to this many
	// rows per label after a successful run. Zero disables pruning.
	KeepPerLabel int

	// Policy decides which profiles are due.
	Policy DuePolicy

	// Train configures the model fit.
	Train model.TrainConfig
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Hour
	}
	if c.SamplesPerLabel <= 0 {
		c.SamplesPerLabel = 500
	}
}

// Scheduler sweeps profiles on a cron schedule and trains the due ones on a
// bounded worker pool.
type Scheduler struct {
	samples   *store.SampleStore
	artifacts *model.ArtifactStore
	cache     *model.Cache
	config    Config
	cron      *cron.Cron
	locks     *lockTable
	logger    *slog.Logger

	workers chan struct{}

	mu       sync.Mutex
	running  bool
	states   map[string]ProfileState
	failures map[string]time.Time

	onResult func(profile string, err error, duration time.Duration)

	wg sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithResultHook registers a callback invoked after every training run,
// with a nil error on success.
func WithResultHook(fn func(profile string, err error, duration time.Duration)) SchedulerOption {
	return func(s *Scheduler) { s.onResult = fn }
}

// NewScheduler builds a scheduler. Start must be called to arm the cron.
func NewScheduler(samples *store.SampleStore, artifacts *model.ArtifactStore, cache *model.Cache, config Config, opts ...SchedulerOption) *Scheduler {
	config.applyDefaults()

	s := &Scheduler{
		samples:   samples,
		artifacts: artifacts,
		cache:     cache,
		config:    config,
		cron:      cron.New(),
		locks:     newLockTable(config.LockTTL),
		logger:    slog.Default().With("component", "trainer.scheduler"),
		workers:   make(chan struct{}, config.Workers),
		states:    make(map[string]ProfileState),
		failures:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the cron sweep. With an empty schedule it only validates state;
// sweeps then happen solely through TriggerSweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("trainer: scheduler already running")
	}

	if s.config.Schedule != "" {
		if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
			return fmt.Errorf("trainer: invalid cron schedule %q: %w", s.config.Schedule, err)
		}
		if _, err := s.cron.AddFunc(s.config.Schedule, func() {
			s.sweep(ctx)
		}); err != nil {
			return fmt.Errorf("trainer: schedule sweep: %w", err)
		}
		s.cron.Start()
	}
	s.running = true

	s.logger.Info("training scheduler started",
		"schedule", s.config.Schedule,
		"workers", s.config.Workers,
		"lock_ttl", s.config.LockTTL)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduled sweeps and waits for in-flight training runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
	s.logger.Info("training scheduler stopped")
}

// TriggerSweep runs one sweep immediately, dispatching due profiles and
// returning without waiting for the training runs to finish.
func (s *Scheduler) TriggerSweep(ctx context.Context) error {
	return s.sweep(ctx)
}

// State reports a profile's current lifecycle state.
func (s *Scheduler) State(profile string) ProfileState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[profile]; ok {
		return state
	}
	return StateIdle
}

// Wait blocks until every dispatched training run has finished. Intended
// for shutdown paths and tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) sweep(ctx context.Context) error {
	profiles, err := s.samples.Profiles(ctx)
	if err != nil {
		s.logger.Error("sweep failed to list profiles", "error", err)
		return err
	}

	now := time.Now()
	for _, profile := range profiles {
		status, err := s.profileStatus(ctx, profile)
		if err != nil {
			s.logger.Error("sweep failed to read profile status",
				"profile", profile,
				"error", err)
			continue
		}

		due, reason := s.config.Policy.Due(now, status)
		if !due {
			s.logger.Debug("profile not due", "profile", profile, "reason", reason)
			continue
		}
		if !s.locks.TryAcquire(profile) {
			s.logger.Debug("profile locked by another run", "profile", profile)
			continue
		}

		s.logger.Info("dispatching training run", "profile", profile, "reason", reason)
		s.setState(profile, StateTraining)

		s.wg.Add(1)
		go func(profile string) {
			defer s.wg.Done()
			defer s.locks.Release(profile)

			// Bounded worker pool; the lock is already held so the
			// profile cannot be re-dispatched while queued.
			s.workers <- struct{}{}
			defer func() { <-s.workers }()

			started := time.Now()
			err := s.train(ctx, profile)
			if err != nil {
				s.logger.Error("training run failed, keeping previous model",
					"profile", profile,
					"error", err)
				s.recordFailure(profile)
				s.setState(profile, StateFailed)
			} else {
				s.clearFailure(profile)
				s.setState(profile, StateIdle)
			}
			if s.onResult != nil {
				s.onResult(profile, err, time.Since(started))
			}
		}(profile)
	}
	return nil
}

func (s *Scheduler) profileStatus(ctx context.Context, profile string) (ProfileStatus, error) {
	counts, err := s.samples.CountByLabel(ctx, profile)
	if err != nil {
		return ProfileStatus{}, err
	}
	latest, err := s.samples.LatestSampleAt(ctx, profile)
	if err != nil {
		return ProfileStatus{}, err
	}
	trainedAt, err := s.artifacts.ModTime(profile)
	if err != nil {
		return ProfileStatus{}, err
	}

	s.mu.Lock()
	lastFailure := s.failures[profile]
	s.mu.Unlock()

	return ProfileStatus{
		Counts:         counts,
		LatestSampleAt: latest,
		LastTrainedAt:  trainedAt,
		LastFailureAt:  lastFailure,
	}, nil
}

// train runs one full training cycle for a profile: balanced draw, fit,
// publish, swap the cache, prune. Any error leaves the published artifact
// and the cached classifier untouched.
func (s *Scheduler) train(ctx context.Context, profile string) error {
	started := time.Now()

	samples, err := s.samples.SampleBalanced(ctx, profile, s.config.SamplesPerLabel)
	if err != nil {
		return fmt.Errorf("draw samples: %w", err)
	}

	training := make([]model.TrainingSample, 0, len(samples))
	for _, sm := range samples {
		training = append(training, model.TrainingSample{
			Text:      sm.Text,
			Violation: sm.Label == store.LabelViolation,
		})
	}

	trained, err := model.Train(training, s.config.Train)
	if err != nil {
		return fmt.Errorf("fit model: %w", err)
	}
	if err := s.artifacts.Save(profile, trained, len(training)); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	version, err := s.artifacts.Version(profile)
	if err != nil {
		return fmt.Errorf("version artifact: %w", err)
	}
	s.cache.Swap(profile, trained, version)

	if s.config.KeepPerLabel > 0 {
		if _, err := s.samples.Prune(ctx, profile, s.config.KeepPerLabel); err != nil {
			// The new model is already published; pruning is best effort.
			s.logger.Warn("post-training prune failed", "profile", profile, "error", err)
		}
	}

	s.logger.Info("training run completed",
		"profile", profile,
		"samples", len(training),
		"duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (s *Scheduler) setState(profile string, state ProfileState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[profile] = state
}

func (s *Scheduler) recordFailure(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[profile] = time.Now()
}

func (s *Scheduler) clearFailure(profile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, profile)
}
