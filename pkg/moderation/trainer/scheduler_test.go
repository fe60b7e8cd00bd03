package trainer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"warden-hq/warden/pkg/moderation/model"
	"warden-hq/warden/pkg/moderation/store"
)

type schedulerFixture struct {
	samples   *store.SampleStore
	artifacts *model.ArtifactStore
	cache     *model.Cache
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	registry := store.NewPoolRegistry(store.PoolConfig{MaxConns: 4})
	t.Cleanup(func() { registry.DrainAll() })

	samples, err := store.NewSampleStore(registry, store.SampleStoreConfig{
		Path: filepath.Join(t.TempDir(), "samples.db"),
	})
	if err != nil {
		t.Fatalf("NewSampleStore() error = %v", err)
	}
	artifacts, err := model.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	return &schedulerFixture{
		samples:   samples,
		artifacts: artifacts,
		cache:     model.NewCache(artifacts),
	}
}

func (f *schedulerFixture) seed(t *testing.T, profile string, perLabel int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < perLabel; i++ {
		for _, label := range []store.Label{store.LabelPass, store.LabelViolation} {
			text := fmt.Sprintf("ordinary message number %d about daily life", i)
			if label == store.LabelViolation {
				text = fmt.Sprintf("cheap pills click now free prize offer %d", i)
			}
			err := f.samples.Record(ctx, &store.Sample{Profile: profile, Text: text, Label: label})
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
		}
	}
}

func newTestScheduler(f *schedulerFixture, config Config, opts ...SchedulerOption) *Scheduler {
	if config.Policy.MinSamplesPerLabel == 0 {
		config.Policy.MinSamplesPerLabel = 5
	}
	if config.Train.Epochs == 0 {
		config.Train = model.TrainConfig{Epochs: 3, Seed: 1}
	}
	return NewScheduler(f.samples, f.artifacts, f.cache, config, opts...)
}

func TestScheduler_TrainsDueProfile(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seed(t, "default", 20)

	var mu sync.Mutex
	results := make(map[string]error)
	s := newTestScheduler(f, Config{}, WithResultHook(func(profile string, err error, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		results[profile] = err
	}))

	if err := s.TriggerSweep(context.Background()); err != nil {
		t.Fatalf("TriggerSweep() error = %v", err)
	}
	s.Wait()

	mu.Lock()
	err, ran := results["default"]
	mu.Unlock()
	if !ran {
		t.Fatal("due profile was not trained")
	}
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	// The artifact is published and the cache serves the new model.
	if _, err := f.artifacts.Version("default"); err != nil {
		t.Errorf("Version() after training error = %v", err)
	}
	classifier, ok := f.cache.Get("default")
	if !ok {
		t.Fatal("cache missing freshly trained model")
	}
	if score := classifier.Score("cheap pills click now free prize"); score <= 0.5 {
		t.Errorf("trained model Score = %.4f, want > 0.5 on a violation", score)
	}
	if s.State("default") != StateIdle {
		t.Errorf("State() = %q, want idle after success", s.State("default"))
	}
}

func TestScheduler_SkipsNotDueProfile(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seed(t, "sparse", 2)

	trained := false
	s := newTestScheduler(f, Config{}, WithResultHook(func(string, error, time.Duration) { trained = true }))

	if err := s.TriggerSweep(context.Background()); err != nil {
		t.Fatalf("TriggerSweep() error = %v", err)
	}
	s.Wait()

	if trained {
		t.Error("profile below the sample floor was trained")
	}
}

func TestScheduler_ConcurrentSweepsTrainOnce(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seed(t, "default", 20)

	var mu sync.Mutex
	runs := 0
	s := newTestScheduler(f, Config{}, WithResultHook(func(string, error, time.Duration) {
		mu.Lock()
		runs++
		mu.Unlock()
	}))

	// Overlapping sweeps race for the same profile; the lock admits one.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.TriggerSweep(context.Background())
		}()
	}
	wg.Wait()
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if runs != 1 {
		t.Errorf("training ran %d times across concurrent sweeps, want 1", runs)
	}
}

func TestScheduler_FailureKeepsPreviousModel(t *testing.T) {
	f := newSchedulerFixture(t)

	// Publish a working model first.
	previous, err := model.Train([]model.TrainingSample{
		{Text: "ordinary message about daily life", Violation: false},
		{Text: "another plain message entirely", Violation: false},
		{Text: "cheap pills click now", Violation: true},
		{Text: "free prize click here now", Violation: true},
	}, model.TrainConfig{Seed: 1})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := f.artifacts.Save("p", previous, 4); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	version, err := f.artifacts.Version("p")
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	f.cache.Swap("p", previous, version)

	// Only pass samples recorded since: the fit cannot see both classes
	// and must fail.
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		err := f.samples.Record(ctx, &store.Sample{
			Profile:   "p",
			Text:      fmt.Sprintf("harmless text %d", i),
			Label:     store.LabelPass,
			CreatedAt: time.Now().UTC().Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	var runErr error
	s := newTestScheduler(f, Config{
		Policy: DuePolicy{MinSamplesPerLabel: 1, RetrainInterval: time.Nanosecond},
	}, WithResultHook(func(_ string, err error, _ time.Duration) { runErr = err }))

	// Let the artifact age past the retrain interval.
	time.Sleep(5 * time.Millisecond)

	if err := s.TriggerSweep(ctx); err != nil {
		t.Fatalf("TriggerSweep() error = %v", err)
	}
	s.Wait()

	if runErr == nil {
		t.Fatal("single-class training run did not fail")
	}
	if s.State("p") != StateFailed {
		t.Errorf("State() = %q, want failed", s.State("p"))
	}

	// The previous model stays published and cached.
	current, err := f.artifacts.Version("p")
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if current != version {
		t.Error("failed run replaced the published artifact")
	}
	if _, ok := f.cache.Get("p"); !ok {
		t.Error("failed run evicted the cached model")
	}

	// The failure cooldown holds the profile back on the next sweep.
	ran := false
	s2 := newTestScheduler(f, Config{
		Policy: DuePolicy{MinSamplesPerLabel: 1, RetrainInterval: time.Nanosecond},
	}, WithResultHook(func(string, error, time.Duration) { ran = true }))
	s2.mu.Lock()
	s2.failures["p"] = time.Now()
	s2.mu.Unlock()

	if err := s2.TriggerSweep(ctx); err != nil {
		t.Fatalf("TriggerSweep() error = %v", err)
	}
	s2.Wait()
	if ran {
		t.Error("profile in failure cooldown was retrained")
	}
}

func TestScheduler_PrunesAfterSuccess(t *testing.T) {
	f := newSchedulerFixture(t)
	f.seed(t, "default", 50)

	s := newTestScheduler(f, Config{KeepPerLabel: 10})
	if err := s.TriggerSweep(context.Background()); err != nil {
		t.Fatalf("TriggerSweep() error = %v", err)
	}
	s.Wait()

	counts, err := f.samples.CountByLabel(context.Background(), "default")
	if err != nil {
		t.Fatalf("CountByLabel() error = %v", err)
	}
	if counts[store.LabelPass] != 10 || counts[store.LabelViolation] != 10 {
		t.Errorf("counts after prune = %v, want 10 per label", counts)
	}
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	s := newTestScheduler(f, Config{Schedule: "not a cron expression"})

	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() accepted an invalid cron schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	f := newSchedulerFixture(t)
	s := newTestScheduler(f, Config{Schedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() did not fail")
	}
	s.Stop()
	// Stopping twice is safe.
	s.Stop()
}
