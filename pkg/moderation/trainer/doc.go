// Package trainer retrains per-profile classifiers in the background.
//
// A cron-driven sweep walks every profile with samples, decides whether it
// is due via the DuePolicy, and dispatches due profiles to a bounded worker
// pool. Per-profile try-locks guarantee at most one training run per profile
// at a time; locks abandoned by a crashed run are reclaimed after a TTL.
// A failed run leaves the previously published model in place.
package trainer
