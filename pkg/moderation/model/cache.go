package model

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxProfiles bounds the number of resident classifiers.
const DefaultMaxProfiles = 64

// Loader resolves persisted classifiers for the cache. Version must be cheap
// enough for the evaluation hot path; Load may be expensive and is only ever
// called from background goroutines.
type Loader interface {
	// Version returns an opaque staleness token for the profile's persisted
	// model, or ErrNoArtifact when none exists.
	Version(profile string) (string, error)

	// Load materializes the profile's classifier together with the version
	// token of the bytes it was built from.
	Load(profile string) (Classifier, string, error)
}

type cacheEntry struct {
	classifier    Classifier
	sourceVersion string
	lastUsedAt    time.Time
}

// Cache holds at most one live classifier per profile, bounded by an LRU
// capacity at profile granularity. Get never blocks on model loading: a miss
// or a stale hit schedules a background load and the caller proceeds with
// whatever is resident right now.
type Cache struct {
	loader      Loader
	maxProfiles int
	logger      *slog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	loading map[string]struct{}

	// hooks for tests and metrics
	onEvict func(profile string)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMaxProfiles overrides the resident-profile bound.
func WithMaxProfiles(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.maxProfiles = n
		}
	}
}

// WithEvictHook registers a callback invoked after each eviction, outside
// any fast-path work but under the cache lock.
func WithEvictHook(fn func(profile string)) CacheOption {
	return func(c *Cache) { c.onEvict = fn }
}

// NewCache builds a cache over the given loader.
func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:      loader,
		maxProfiles: DefaultMaxProfiles,
		logger:      slog.Default().With("component", "model_cache"),
		entries:     make(map[string]*cacheEntry),
		loading:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the resident classifier for the profile, or (nil, false) when
// none is loaded yet. A miss schedules a background load; a hit whose source
// version no longer matches the persisted artifact schedules a background
// reload while still returning the current classifier.
func (c *Cache) Get(profile string) (Classifier, bool) {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[profile]
	if ok {
		entry.lastUsedAt = now
		classifier := entry.classifier
		resident := entry.sourceVersion
		c.mu.Unlock()

		if version, err := c.loader.Version(profile); err == nil && version != resident {
			c.scheduleLoad(profile)
		}
		return classifier, true
	}
	c.mu.Unlock()

	c.scheduleLoad(profile)
	return nil, false
}

// Swap installs a freshly trained classifier for the profile, replacing any
// resident entry atomically. In-flight evaluations holding the previous
// classifier finish against it; new evaluations observe the replacement.
func (c *Cache) Swap(profile string, classifier Classifier, sourceVersion string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[profile] = &cacheEntry{
		classifier:    classifier,
		sourceVersion: sourceVersion,
		lastUsedAt:    now,
	}
	c.evictOverCapLocked()
}

// Invalidate drops the resident entry for a profile, if any. The next Get
// misses and schedules a reload.
func (c *Cache) Invalidate(profile string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[profile]; ok {
		delete(c.entries, profile)
		if c.onEvict != nil {
			c.onEvict(profile)
		}
	}
}

// EvictIdle drops every entry whose last use is older than maxIdle and
// returns the evicted profile names.
func (c *Cache) EvictIdle(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted []string
	for profile, entry := range c.entries {
		if entry.lastUsedAt.Before(cutoff) {
			delete(c.entries, profile)
			evicted = append(evicted, profile)
			if c.onEvict != nil {
				c.onEvict(profile)
			}
		}
	}
	return evicted
}

// Len reports the number of resident classifiers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// scheduleLoad starts at most one background load per profile. Concurrent
// callers for the same profile coalesce onto the in-flight load.
func (c *Cache) scheduleLoad(profile string) {
	c.mu.Lock()
	if _, inFlight := c.loading[profile]; inFlight {
		c.mu.Unlock()
		return
	}
	c.loading[profile] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.loading, profile)
			c.mu.Unlock()
		}()

		classifier, version, err := c.loader.Load(profile)
		if err != nil {
			if !errors.Is(err, ErrNoArtifact) {
				c.logger.Warn("background model load failed",
					"profile", profile,
					"error", err)
			}
			return
		}
		c.Swap(profile, classifier, version)
		c.logger.Info("model loaded",
			"profile", profile,
			"version", version)
	}()
}

// evictOverCapLocked evicts least-recently-used entries until the resident
// count fits the bound. Caller holds c.mu.
func (c *Cache) evictOverCapLocked() {
	for len(c.entries) > c.maxProfiles {
		var (
			victim string
			oldest time.Time
			found  bool
		)
		for profile, entry := range c.entries {
			if !found || entry.lastUsedAt.Before(oldest) {
				victim = profile
				oldest = entry.lastUsedAt
				found = true
			}
		}
		delete(c.entries, victim)
		if c.onEvict != nil {
			c.onEvict(victim)
		}
		c.logger.Debug("evicted least recently used model", "profile", victim)
	}
}
