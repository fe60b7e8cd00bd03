package trainer

import (
	"time"

	"warden-hq/warden/pkg/moderation/store"
)

// DuePolicy decides whether a profile needs retraining.
type DuePolicy struct {
	// MinSamplesPerLabel is the floor below which training is pointless.
	// Default: 25.
	MinSamplesPerLabel int

	// RetrainInterval is the minimum age of the published model before a
	// retrain is considered. Default: 1 hour.
	RetrainInterval time.Duration

	// FailureCooldown holds a profile back after a failed run so a
	// persistently broken profile does not spin the worker pool.
	// Default: 30 minutes.
	FailureCooldown time.Duration
}

func (p *DuePolicy) applyDefaults() {
	if p.MinSamplesPerLabel <= 0 {
		p.MinSamplesPerLabel = 25
	}
	if p.RetrainInterval <= 0 {
		p.RetrainInterval = time.Hour
	}
	if p.FailureCooldown <= 0 {
		p.FailureCooldown = 30 * time.Minute
	}
}

// ProfileStatus is everything the policy looks at for one profile.
type ProfileStatus struct {
	Counts         map[store.Label]int
	LatestSampleAt time.Time

	// LastTrainedAt is the publish time of the current model artifact,
	// zero when the profile has never trained successfully.
	LastTrainedAt time.Time

	// LastFailureAt is the time of the most recent failed run, zero when
	// the profile has never failed.
	LastFailureAt time.Time
}

// Due reports whether the profile should train now, with the reason either
// way for operator-facing logs.
func (p DuePolicy) Due(now time.Time, status ProfileStatus) (bool, string) {
	p.applyDefaults()

	if status.Counts[store.LabelPass] < p.MinSamplesPerLabel ||
		status.Counts[store.LabelViolation] < p.MinSamplesPerLabel {
		return false, "insufficient samples"
	}
	if !status.LastFailureAt.IsZero() && now.Sub(status.LastFailureAt) < p.FailureCooldown {
		return false, "in failure cooldown"
	}
	if status.LastTrainedAt.IsZero() {
		return true, "never trained"
	}
	if now.Sub(status.LastTrainedAt) < p.RetrainInterval {
		return false, "model fresh"
	}
	if !status.LatestSampleAt.After(status.LastTrainedAt) {
		return false, "no new samples since last training"
	}
	return true, "model stale with new samples"
}
