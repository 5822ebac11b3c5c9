package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"opencfg/internal/logging"
)

const defaultWatchDebounce = 300 * time.Millisecond

// Watcher reloads the engine when the user configuration file changes on
// disk. It watches the parent directory rather than the file itself so
// editors that replace the file atomically keep triggering events, and it
// debounces bursts of events into one reload.
type Watcher struct {
	engine   *Engine
	path     string
	debounce time.Duration
	logger   logging.Logger

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// WatcherOption customises a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet interval collapsed into one reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger attaches a logger to the watcher.
func WithWatcherLogger(logger logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logging.OrNop(logger) }
}

// NewWatcher builds a watcher for the engine's user configuration file.
func NewWatcher(engine *Engine, opts ...WatcherOption) (*Watcher, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	w := &Watcher{
		engine:   engine,
		path:     engine.UserConfigPath(),
		debounce: defaultWatchDebounce,
		logger:   logging.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw

	go w.run(ctx)
	return nil
}

// Stop terminates the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error: %v", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

func (w *Watcher) reload() {
	result, err := w.engine.Reload()
	if err != nil {
		w.logger.Warn("config file changed but reload was rejected: %v", err)
		return
	}
	switch {
	case result.RequiresRestart:
		w.logger.Warn("config file change touches restart-only keys: %v", result.AppliedKeys)
	case len(result.AppliedKeys) > 0:
		w.logger.Info("config file change applied: %v", result.AppliedKeys)
	}
}
