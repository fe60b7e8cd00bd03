package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher watches the artifact directory and invalidates cached
// classifiers when their on-disk model changes. Trainers running in the same
// process already swap the cache directly; the watcher covers artifacts
// published by other processes or copied in by operators.
type ArtifactWatcher struct {
	store    *ArtifactStore
	cache    *Cache
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	pending map[string]*time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewArtifactWatcher wires a watcher over the store's root directory.
// debounce collapses rapid write events per profile; zero means 100ms.
func NewArtifactWatcher(store *ArtifactStore, cache *Cache, debounce time.Duration) (*ArtifactWatcher, error) {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("model: create fsnotify watcher: %w", err)
	}
	return &ArtifactWatcher{
		store:    store,
		cache:    cache,
		watcher:  fsw,
		logger:   slog.Default().With("component", "artifact_watcher"),
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing filesystem events until the context is cancelled
// or Stop is called.
func (w *ArtifactWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("model: artifact watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = make(map[string]*time.Timer)
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(w.store.root); err != nil {
		return fmt.Errorf("model: watch artifact root: %w", err)
	}

	w.logger.Info("artifact watcher started",
		"root", w.store.root,
		"debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("model: watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			profile, ok := w.store.ProfileForPath(event.Name)
			if !ok {
				continue
			}
			w.schedule(profile)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("model: watcher errors channel closed")
			}
			w.logger.Error("artifact watcher error", "error", err)
		}
	}
}

// Stop terminates Watch and closes the underlying fsnotify watcher.
func (w *ArtifactWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// schedule arms or resets the per-profile debounce timer.
func (w *ArtifactWatcher) schedule(profile string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[profile]; ok {
		t.Stop()
	}
	w.pending[profile] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, profile)
		w.mu.Unlock()

		w.logger.Info("artifact changed on disk, invalidating cached model", "profile", profile)
		w.cache.Invalidate(profile)
	})
}
