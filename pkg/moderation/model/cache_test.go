package model

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubClassifier scores every input with a fixed value, identifying which
// model generation the cache served.
type stubClassifier struct {
	score float64
}

func (s *stubClassifier) Score(string) float64 { return s.score }

// stubLoader serves classifiers from an in-memory map and counts calls.
type stubLoader struct {
	mu       sync.Mutex
	versions map[string]string
	models   map[string]Classifier
	loads    int
}

func newStubLoader() *stubLoader {
	return &stubLoader{
		versions: make(map[string]string),
		models:   make(map[string]Classifier),
	}
}

func (l *stubLoader) set(profile, version string, c Classifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.versions[profile] = version
	l.models[profile] = c
}

func (l *stubLoader) Version(profile string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.versions[profile]
	if !ok {
		return "", ErrNoArtifact
	}
	return v, nil
}

func (l *stubLoader) Load(profile string) (Classifier, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	c, ok := l.models[profile]
	if !ok {
		return nil, "", ErrNoArtifact
	}
	return c, l.versions[profile], nil
}

func (l *stubLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestCache_MissSchedulesBackgroundLoad(t *testing.T) {
	loader := newStubLoader()
	loader.set("default", "v1", &stubClassifier{score: 0.1})
	cache := NewCache(loader)

	if _, ok := cache.Get("default"); ok {
		t.Fatal("Get() hit on a cold cache")
	}

	// The miss must not block; the classifier appears asynchronously.
	waitFor(t, func() bool {
		_, ok := cache.Get("default")
		return ok
	})
	c, ok := cache.Get("default")
	if !ok {
		t.Fatal("Get() still missing after background load")
	}
	if got := c.Score(""); got != 0.1 {
		t.Errorf("Score = %v, want 0.1", got)
	}
}

func TestCache_MissForAbsentArtifactStaysAbsent(t *testing.T) {
	loader := newStubLoader()
	cache := NewCache(loader)

	if _, ok := cache.Get("nope"); ok {
		t.Fatal("Get() hit for a profile with no artifact")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get("nope"); ok {
		t.Error("Get() hit after failed background load")
	}
}

func TestCache_StaleHitServesOldThenReloads(t *testing.T) {
	loader := newStubLoader()
	loader.set("p", "v1", &stubClassifier{score: 0.1})
	cache := NewCache(loader)

	cache.Swap("p", &stubClassifier{score: 0.1}, "v1")

	// New artifact published; the next Get still serves v1 without blocking.
	loader.set("p", "v2", &stubClassifier{score: 0.9})

	c, ok := cache.Get("p")
	if !ok {
		t.Fatal("Get() missed on a resident entry")
	}
	if got := c.Score(""); got != 0.1 {
		t.Errorf("stale hit Score = %v, want previous model 0.1", got)
	}

	waitFor(t, func() bool {
		c, ok := cache.Get("p")
		return ok && c.Score("") == 0.9
	})
}

func TestCache_SwapReplacesAtomically(t *testing.T) {
	cache := NewCache(newStubLoader())
	cache.Swap("p", &stubClassifier{score: 0.2}, "v1")
	cache.Swap("p", &stubClassifier{score: 0.8}, "v2")

	c, ok := cache.Get("p")
	if !ok {
		t.Fatal("Get() missed after Swap")
	}
	if got := c.Score(""); got != 0.8 {
		t.Errorf("Score = %v, want 0.8", got)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	cache := NewCache(newStubLoader(),
		WithMaxProfiles(3),
		WithEvictHook(func(profile string) { evicted = append(evicted, profile) }))

	for i := 0; i < 3; i++ {
		cache.Swap(fmt.Sprintf("p%d", i), &stubClassifier{}, "v1")
		time.Sleep(time.Millisecond)
	}

	// Touch p0 so p1 becomes the least recently used.
	time.Sleep(time.Millisecond)
	if _, ok := cache.Get("p0"); !ok {
		t.Fatal("Get(p0) missed")
	}

	cache.Swap("p3", &stubClassifier{}, "v1")

	if cache.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", cache.Len())
	}
	if len(evicted) != 1 || evicted[0] != "p1" {
		t.Errorf("evicted = %v, want [p1]", evicted)
	}
	if _, ok := cache.Get("p1"); ok {
		t.Error("Get(p1) hit after eviction")
	}
}

func TestCache_EvictIdle(t *testing.T) {
	cache := NewCache(newStubLoader())
	cache.Swap("old", &stubClassifier{}, "v1")
	time.Sleep(20 * time.Millisecond)
	cache.Swap("fresh", &stubClassifier{}, "v1")

	evicted := cache.EvictIdle(10 * time.Millisecond)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Errorf("EvictIdle() = %v, want [old]", evicted)
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Error("fresh entry evicted")
	}
}

func TestCache_ConcurrentGetAndSwap(t *testing.T) {
	loader := newStubLoader()
	loader.set("p", "v1", &stubClassifier{score: 0.5})
	cache := NewCache(loader)
	cache.Swap("p", &stubClassifier{score: 0.5}, "v1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if c, ok := cache.Get("p"); ok {
					// Borrowed classifiers stay usable across swaps.
					_ = c.Score("text")
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		cache.Swap("p", &stubClassifier{score: float64(i)}, fmt.Sprintf("v%d", i))
	}
	wg.Wait()
}

func TestCache_CoalescesConcurrentLoads(t *testing.T) {
	loader := newStubLoader()
	loader.set("p", "v1", &stubClassifier{score: 0.3})
	cache := NewCache(loader)

	for i := 0; i < 16; i++ {
		cache.Get("p")
	}
	waitFor(t, func() bool {
		_, ok := cache.Get("p")
		return ok
	})

	// A storm of misses must not fan out into a storm of loads.
	if n := loader.loadCount(); n > 3 {
		t.Errorf("loader called %d times for one profile", n)
	}
}
