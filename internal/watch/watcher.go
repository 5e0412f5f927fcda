// Package watch re-runs scenario files when they change on disk.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"collapse/internal/logging"
)

// Handler is called with the path of a file whose changes have settled.
type Handler func(ctx context.Context, path string)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Triggers      int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// ScenarioWatcher watches a set of scenario files. It watches their parent
// directories, since editors often replace a file rather than write it in
// place, and filters events down to the files it was given.
type ScenarioWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	files       map[string]bool
	handler     Handler
	pending     map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// NewScenarioWatcher creates a watcher for the given files.
func NewScenarioWatcher(files []string, handler Handler) (*ScenarioWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &ScenarioWatcher{
		watcher:     w,
		files:       make(map[string]bool, len(files)),
		handler:     handler,
		pending:     make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		sw.files[abs] = true
	}
	return sw, nil
}

// SetDebounce changes how long a file must be quiet before it triggers.
func (sw *ScenarioWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	sw.debounceDur = d
	sw.mu.Unlock()
}

// Start begins watching. It does not block.
func (sw *ScenarioWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return nil
	}
	sw.running = true
	sw.mu.Unlock()

	dirs := make(map[string]bool)
	for f := range sw.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := sw.watcher.Add(dir); err != nil {
			sw.mu.Lock()
			sw.running = false
			sw.mu.Unlock()
			return err
		}
		logging.Watch("watching directory: %s", dir)
	}

	go sw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (sw *ScenarioWatcher) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		sw.watcher.Close()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopCh)
	<-sw.doneCh

	if err := sw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Stats returns a snapshot of watcher activity.
func (sw *ScenarioWatcher) Stats() Stats {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stats
}

func (sw *ScenarioWatcher) run(ctx context.Context) {
	defer close(sw.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
			return

		case <-sw.stopCh:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			sw.mu.Lock()
			sw.stats.Errors++
			sw.mu.Unlock()

		case <-ticker.C:
			sw.flush(ctx)
		}
	}
}

func (sw *ScenarioWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !sw.files[abs] {
		return
	}

	sw.mu.Lock()
	sw.stats.Events++
	sw.stats.LastEventPath = abs
	sw.stats.LastEventTime = time.Now()
	sw.pending[abs] = time.Now()
	sw.mu.Unlock()
}

// flush fires the handler for files that have been quiet for the debounce
// window.
func (sw *ScenarioWatcher) flush(ctx context.Context) {
	sw.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range sw.pending {
		if now.Sub(at) >= sw.debounceDur {
			ready = append(ready, path)
			delete(sw.pending, path)
		}
	}
	sw.stats.Triggers += len(ready)
	sw.mu.Unlock()

	for _, path := range ready {
		logging.Watch("change settled: %s", path)
		sw.handler(ctx, path)
	}
}

// Trigger runs the handler for every watched file immediately.
func (sw *ScenarioWatcher) Trigger(ctx context.Context) {
	sw.mu.RLock()
	files := make([]string, 0, len(sw.files))
	for f := range sw.files {
		files = append(files, f)
	}
	sw.mu.RUnlock()
	for _, f := range files {
		sw.handler(ctx, f)
	}
}
