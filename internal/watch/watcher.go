// Package watch rebuilds entries when their templates change on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"htlpack/internal/bundler"
	"htlpack/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Builder is what the watcher rebuilds. *bundler.Bundler satisfies it.
type Builder interface {
	Entries() []string
	Bundle(ctx context.Context) (*bundler.Bundle, error)
}

// OnBuild receives the outcome of every rebuild.
type OnBuild func(b *bundler.Bundle, err error)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Builds        int
	BuildFailures int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// minTick bounds how often pending changes are polled.
const minTick = time.Millisecond

// Watcher debounces template changes into rebuilds.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	builder     Builder
	onBuild     OnBuild
	entries     map[string]bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a Watcher for the builder's entries. debounce <= 0 means 200ms.
func New(builder Builder, debounce time.Duration, onBuild OnBuild) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if onBuild == nil {
		onBuild = func(*bundler.Bundle, error) {}
	}

	entries := make(map[string]bool)
	for _, e := range builder.Entries() {
		entries[filepath.Clean(e)] = true
	}

	return &Watcher{
		watcher:     fw,
		builder:     builder,
		onBuild:     onBuild,
		entries:     entries,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start watches the directories holding the entries. It is non-blocking.
// Editors often replace files instead of writing them, so directories are
// watched rather than the files themselves.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil // Already running
	}
	w.running = true
	w.mu.Unlock()

	dirs := map[string]bool{}
	for e := range w.entries {
		dirs[filepath.Dir(e)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		logging.Watch("watching directory: %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(max(w.debounceDur/4, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if !w.entries[name] {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.WatchDebug("%s event for %s", event.Op, name)

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = name
	w.debounceMap[name] = time.Now()
	w.mu.Unlock()
}

// processDebounced rebuilds once every pending change has settled.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	if len(w.debounceMap) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, t := range w.debounceMap {
		if now.Sub(t) < w.debounceDur {
			w.mu.Unlock()
			return
		}
	}
	changed := make([]string, 0, len(w.debounceMap))
	for p := range w.debounceMap {
		changed = append(changed, p)
	}
	w.debounceMap = make(map[string]time.Time)
	w.mu.Unlock()

	logging.Watch("rebuilding after change to %v", changed)
	b, err := w.builder.Bundle(ctx)

	w.mu.Lock()
	w.stats.Builds++
	if err != nil {
		w.stats.BuildFailures++
	}
	w.mu.Unlock()

	w.onBuild(b, err)
}

// Rebuild runs a build immediately and reports it like a triggered one.
func (w *Watcher) Rebuild(ctx context.Context) {
	b, err := w.builder.Bundle(ctx)
	w.mu.Lock()
	w.stats.Builds++
	if err != nil {
		w.stats.BuildFailures++
	}
	w.mu.Unlock()
	w.onBuild(b, err)
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
