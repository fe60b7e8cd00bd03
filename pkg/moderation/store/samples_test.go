package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestSampleStore(t *testing.T) *SampleStore {
	t.Helper()
	registry := NewPoolRegistry(PoolConfig{MaxConns: 4})
	t.Cleanup(func() { registry.DrainAll() })

	s, err := NewSampleStore(registry, SampleStoreConfig{
		Path: filepath.Join(t.TempDir(), "samples.db"),
	})
	if err != nil {
		t.Fatalf("NewSampleStore() error = %v", err)
	}
	return s
}

func recordN(t *testing.T, s *SampleStore, profile string, label Label, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := s.Record(ctx, &Sample{
			Profile: profile,
			Text:    fmt.Sprintf("%s sample %d", label, i),
			Label:   label,
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
}

func TestSampleStore_RecordAndCount(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "default", LabelPass, 3)
	recordN(t, s, "default", LabelViolation, 2)
	recordN(t, s, "other", LabelPass, 1)

	counts, err := s.CountByLabel(context.Background(), "default")
	if err != nil {
		t.Fatalf("CountByLabel() error = %v", err)
	}
	if counts[LabelPass] != 3 || counts[LabelViolation] != 2 {
		t.Errorf("counts = %v, want pass=3 violation=2", counts)
	}
}

func TestSampleStore_SampleIsBounded(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "big", LabelPass, 200)

	// The draw must come back capped no matter how many rows exist.
	got, err := s.Sample(context.Background(), "big", 50)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(got) != 50 {
		t.Errorf("Sample() returned %d rows, want 50", len(got))
	}
	for _, sm := range got {
		if sm.Profile != "big" {
			t.Fatalf("Sample() crossed profiles: got %q", sm.Profile)
		}
	}
}

func TestSampleStore_SampleSmallerThanLimit(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "tiny", LabelViolation, 3)

	got, err := s.Sample(context.Background(), "tiny", 50)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Sample() returned %d rows, want all 3", len(got))
	}
}

func TestSampleStore_SampleByLabel(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "p", LabelPass, 40)
	recordN(t, s, "p", LabelViolation, 40)

	got, err := s.SampleByLabel(context.Background(), "p", LabelViolation, 10)
	if err != nil {
		t.Fatalf("SampleByLabel() error = %v", err)
	}
	if len(got) != 10 {
		t.Errorf("SampleByLabel() returned %d rows, want 10", len(got))
	}
	for _, sm := range got {
		if sm.Label != LabelViolation {
			t.Fatalf("draw crossed labels: got %q", sm.Label)
		}
	}
}

func TestSampleStore_SampleBalanced(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "skew", LabelPass, 100)
	recordN(t, s, "skew", LabelViolation, 5)

	got, err := s.SampleBalanced(context.Background(), "skew", 10)
	if err != nil {
		t.Fatalf("SampleBalanced() error = %v", err)
	}

	byLabel := make(map[Label]int)
	for _, sm := range got {
		byLabel[sm.Label]++
	}
	if byLabel[LabelPass] != 10 {
		t.Errorf("pass draws = %d, want 10", byLabel[LabelPass])
	}
	// The minority class contributes everything it has.
	if byLabel[LabelViolation] != 5 {
		t.Errorf("violation draws = %d, want 5", byLabel[LabelViolation])
	}
}

func TestSampleStore_Profiles(t *testing.T) {
	s := newTestSampleStore(t)
	recordN(t, s, "beta", LabelPass, 1)
	recordN(t, s, "alpha", LabelPass, 1)

	profiles, err := s.Profiles(context.Background())
	if err != nil {
		t.Fatalf("Profiles() error = %v", err)
	}
	if len(profiles) != 2 || profiles[0] != "alpha" || profiles[1] != "beta" {
		t.Errorf("Profiles() = %v, want [alpha beta]", profiles)
	}
}

func TestSampleStore_LatestSampleAt(t *testing.T) {
	s := newTestSampleStore(t)
	ctx := context.Background()

	latest, err := s.LatestSampleAt(ctx, "empty")
	if err != nil {
		t.Fatalf("LatestSampleAt() error = %v", err)
	}
	if !latest.IsZero() {
		t.Errorf("LatestSampleAt() on empty profile = %v, want zero", latest)
	}

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	for _, at := range []time.Time{older, newer} {
		err := s.Record(ctx, &Sample{Profile: "p", Text: "x", Label: LabelPass, CreatedAt: at})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	latest, err = s.LatestSampleAt(ctx, "p")
	if err != nil {
		t.Fatalf("LatestSampleAt() error = %v", err)
	}
	if latest.Sub(newer).Abs() > time.Second {
		t.Errorf("LatestSampleAt() = %v, want ~%v", latest, newer)
	}
}

func TestSampleStore_PruneKeepsNewestPerLabel(t *testing.T) {
	s := newTestSampleStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		err := s.Record(ctx, &Sample{
			Profile:   "p",
			Text:      fmt.Sprintf("pass %d", i),
			Label:     LabelPass,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	recordN(t, s, "p", LabelViolation, 3)

	deleted, err := s.Prune(ctx, "p", 5)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 15 {
		t.Errorf("Prune() deleted %d, want 15", deleted)
	}

	counts, err := s.CountByLabel(ctx, "p")
	if err != nil {
		t.Fatalf("CountByLabel() error = %v", err)
	}
	if counts[LabelPass] != 5 {
		t.Errorf("pass count after prune = %d, want 5", counts[LabelPass])
	}
	// Under the keep bound, the violation rows are untouched.
	if counts[LabelViolation] != 3 {
		t.Errorf("violation count after prune = %d, want 3", counts[LabelViolation])
	}

	// The survivors are the newest rows.
	survivors, err := s.Sample(ctx, "p", 100)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	cutoff := base.Add(14 * time.Minute)
	for _, sm := range survivors {
		if sm.Label == LabelPass && sm.CreatedAt.Before(cutoff) {
			t.Errorf("old sample %q survived prune (created %v)", sm.Text, sm.CreatedAt)
		}
	}
}
