package trainer

import (
	"sync"
	"time"
)

// lockTable hands out per-profile training locks. TryAcquire never blocks:
// a held lock means another run owns the profile and the caller skips it.
// Locks older than the TTL are treated as abandoned and reclaimed, so a
// crashed or wedged run cannot freeze a profile forever.
type lockTable struct {
	ttl time.Duration

	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func newLockTable(ttl time.Duration) *lockTable {
	return &lockTable{
		ttl:   ttl,
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// TryAcquire takes the profile's lock if it is free or expired.
func (t *lockTable) TryAcquire(profile string) bool {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if acquiredAt, ok := t.held[profile]; ok {
		if now.Sub(acquiredAt) < t.ttl {
			return false
		}
		// Stale lock from a run that never released; reclaim it.
	}
	t.held[profile] = now
	return true
}

// Release frees the profile's lock. Releasing an unheld lock is a no-op.
func (t *lockTable) Release(profile string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, profile)
}

// HeldCount reports how many profiles are currently locked.
func (t *lockTable) HeldCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}
