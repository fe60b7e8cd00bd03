package trainer

import (
	"testing"
	"time"

	"warden-hq/warden/pkg/moderation/store"
)

func TestDuePolicy_Due(t *testing.T) {
	policy := DuePolicy{
		MinSamplesPerLabel: 10,
		RetrainInterval:    time.Hour,
		FailureCooldown:    30 * time.Minute,
	}
	now := time.Now()
	enough := map[store.Label]int{store.LabelPass: 50, store.LabelViolation: 50}

	tests := []struct {
		name   string
		status ProfileStatus
		due    bool
		reason string
	}{
		{
			name:   "too few violation samples",
			status: ProfileStatus{Counts: map[store.Label]int{store.LabelPass: 50, store.LabelViolation: 3}},
			due:    false,
			reason: "insufficient samples",
		},
		{
			name:   "too few pass samples",
			status: ProfileStatus{Counts: map[store.Label]int{store.LabelPass: 3, store.LabelViolation: 50}},
			due:    false,
			reason: "insufficient samples",
		},
		{
			name:   "never trained",
			status: ProfileStatus{Counts: enough, LatestSampleAt: now},
			due:    true,
			reason: "never trained",
		},
		{
			name: "model still fresh",
			status: ProfileStatus{
				Counts:         enough,
				LatestSampleAt: now,
				LastTrainedAt:  now.Add(-10 * time.Minute),
			},
			due:    false,
			reason: "model fresh",
		},
		{
			name: "stale model with new samples",
			status: ProfileStatus{
				Counts:         enough,
				LatestSampleAt: now.Add(-5 * time.Minute),
				LastTrainedAt:  now.Add(-2 * time.Hour),
			},
			due:    true,
			reason: "model stale with new samples",
		},
		{
			name: "stale model but nothing new",
			status: ProfileStatus{
				Counts:         enough,
				LatestSampleAt: now.Add(-3 * time.Hour),
				LastTrainedAt:  now.Add(-2 * time.Hour),
			},
			due:    false,
			reason: "no new samples since last training",
		},
		{
			name: "inside failure cooldown",
			status: ProfileStatus{
				Counts:         enough,
				LatestSampleAt: now,
				LastFailureAt:  now.Add(-5 * time.Minute),
			},
			due:    false,
			reason: "in failure cooldown",
		},
		{
			name: "cooldown elapsed",
			status: ProfileStatus{
				Counts:         enough,
				LatestSampleAt: now,
				LastFailureAt:  now.Add(-time.Hour),
			},
			due:    true,
			reason: "never trained",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due, reason := policy.Due(now, tt.status)
			if due != tt.due {
				t.Errorf("Due() = %v, want %v", due, tt.due)
			}
			if reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestDuePolicy_Defaults(t *testing.T) {
	var policy DuePolicy
	now := time.Now()

	// 24 per label sits under the default floor of 25.
	due, reason := policy.Due(now, ProfileStatus{
		Counts: map[store.Label]int{store.LabelPass: 24, store.LabelViolation: 24},
	})
	if due || reason != "insufficient samples" {
		t.Errorf("Due() = (%v, %q), want default min-samples floor applied", due, reason)
	}
}
