package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches config.toml for changes and hands the daemon a freshly
// reloaded Config, debounced against editors that write in multiple steps
// (truncate then rewrite). Grounded on
// grovetools-core/pkg/daemon/config_watcher.go's ConfigWatcher: same
// fsnotify.Watcher + debounce-by-timestamp + onReload callback shape,
// narrowed to a single file instead of a whole directory of symlinked
// config fragments.
type Watcher struct {
	watcher    *fsnotify.Watcher
	path       string
	debounce   time.Duration
	onReload   func(Config)
	mu         sync.Mutex
	lastChange time.Time
}

// NewWatcher creates a Watcher for the config file at path. onReload is
// invoked (from Watcher's own goroutine, started by Start) whenever the
// file changes and reparses successfully.
func NewWatcher(path string, onReload func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{watcher: fw, path: path, debounce: 100 * time.Millisecond, onReload: onReload}, nil
}

// Start blocks, dispatching reloads until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	if time.Since(w.lastChange) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		return // keep running on the last good config
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
