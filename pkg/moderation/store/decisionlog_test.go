package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestDecisionLog(t *testing.T) *DecisionLog {
	t.Helper()
	registry := NewPoolRegistry(PoolConfig{MaxConns: 4})
	t.Cleanup(func() { registry.DrainAll() })

	l, err := NewDecisionLog(registry, filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("NewDecisionLog() error = %v", err)
	}
	return l
}

func TestDecisionLog_AppendAndTail(t *testing.T) {
	l := newTestDecisionLog(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	records := []*DecisionRecord{
		{RequestID: "r1", Profile: "default", Verdict: "pass", Score: 0.1, DecidedAt: base},
		{RequestID: "r2", Profile: "default", Verdict: "violation", Score: 0.9, Sampled: true, DecidedAt: base.Add(time.Second)},
		{RequestID: "r3", Profile: "other", Verdict: "pass", Score: 0.2, ModelAbsent: true, DecidedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := l.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if rec.ID == "" {
			t.Error("Append() left ID empty")
		}
	}

	got, err := l.Tail(ctx, DecisionQuery{Profile: "default"})
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Tail() returned %d records, want 2", len(got))
	}
	// Most recent first.
	if got[0].RequestID != "r2" || got[1].RequestID != "r1" {
		t.Errorf("Tail() order = [%s %s], want [r2 r1]", got[0].RequestID, got[1].RequestID)
	}
	if !got[0].Sampled || got[0].Verdict != "violation" {
		t.Errorf("record r2 round trip broken: %+v", got[0])
	}
}

func TestDecisionLog_TailFilters(t *testing.T) {
	l := newTestDecisionLog(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, verdict := range []string{"pass", "violation", "pass"} {
		err := l.Append(ctx, &DecisionRecord{
			RequestID: "r",
			Profile:   "p",
			Verdict:   verdict,
			DecidedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		query DecisionQuery
		want  int
	}{
		{"by verdict", DecisionQuery{Profile: "p", Verdict: "violation"}, 1},
		{"by since", DecisionQuery{Profile: "p", Since: now.Add(500 * time.Millisecond)}, 2},
		{"with limit", DecisionQuery{Profile: "p", Limit: 1}, 1},
		{"no match", DecisionQuery{Profile: "absent"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Tail(ctx, tt.query)
			if err != nil {
				t.Fatalf("Tail() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Tail() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDecisionLog_Count(t *testing.T) {
	l := newTestDecisionLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		verdict := "pass"
		if i%2 == 0 {
			verdict = "violation"
		}
		if err := l.Append(ctx, &DecisionRecord{RequestID: "r", Profile: "p", Verdict: verdict}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := l.Count(ctx, DecisionQuery{Profile: "p", Verdict: "violation"})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}
