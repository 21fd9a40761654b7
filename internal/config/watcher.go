package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Quant-Club/Quant-Engine/internal/telemetry/logging"
)

// UpdateCallback is invoked with the newly parsed config whenever the
// watched file changes. Only risk limits and the log level are treated as
// hot-reloadable by the execution core; everything else requires a restart
// to take effect and is left for the caller to detect by comparing fields.
type UpdateCallback func(newCfg *Config)

// Watcher watches a config file on disk and re-parses it on change,
// delivering the result to a registered callback. It never blocks the
// caller: file events are read on their own goroutine.
type Watcher struct {
	path     string
	log      *logging.Logger
	fw       *fsnotify.Watcher
	mu       sync.Mutex
	current  *Config
	callback UpdateCallback
}

// NewWatcher creates a Watcher for path, seeded with an already-loaded
// initial config.
func NewWatcher(path string, initial *Config, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	return &Watcher{path: path, log: log, fw: fw, current: initial}, nil
}

// OnUpdate registers the callback invoked after every successful reload.
func (w *Watcher) OnUpdate(cb UpdateCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = cb
}

// Start begins watching the config file's directory until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("config watcher error", "error", err.Error())
			}
		}
	}
}

func (w *Watcher) reload() {
	newCfg, err := Load(w.path)
	if err != nil {
		if w.log != nil {
			w.log.Warn("config: reload failed, keeping previous config", "error", err.Error())
		}
		return
	}
	w.mu.Lock()
	w.current = newCfg
	cb := w.callback
	w.mu.Unlock()
	if cb != nil {
		cb(newCfg)
	}
}
