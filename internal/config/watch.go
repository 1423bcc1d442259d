package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"loopctl/internal/logging"
)

// Watcher hot-reloads thresholds and budgets from a config file without
// restarting the process. Structural fields (limits map shape, retention)
// are reloaded too, but callers that cached a *Config should re-fetch via
// Current() rather than holding the old pointer across a reload.
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher loads path once and begins watching it for changes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{current: cfg, path: path}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		// Hot-reload is a convenience, not a correctness requirement;
		// degrade to the statically loaded config.
		logging.Get(logging.CategoryConfig).Warn("fsnotify unavailable, hot-reload disabled: %v", err)
		return w, nil
	}
	w.watcher = fw
	if err := fw.Add(path); err != nil {
		logging.Get(logging.CategoryConfig).Warn("failed to watch config path %s: %v", path, err)
		return w, nil
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logging.Get(logging.CategoryConfig).Warn("config reload failed, keeping previous: %v", err)
				continue
			}
			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()
			logging.Get(logging.CategoryConfig).Info("config reloaded from %s", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Warn("config watcher error: %v", err)
		}
	}
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the underlying filesystem watch, if any.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
