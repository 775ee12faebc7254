package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the YAML config file when it changes and notifies
// registered callbacks with the new configuration.
type Watcher struct {
	path     string
	load     func() (*Config, error)
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLoader replaces the reload function. Defaults to LoadConfig.
func WithLoader(load func() (*Config, error)) WatcherOption {
	return func(w *Watcher) { w.load = load }
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher starts watching initial.FilePath. The directory is watched
// rather than the file so editors that replace the file are still seen.
func NewWatcher(initial *Config, logger *zap.Logger, opts ...WatcherOption) (*Watcher, error) {
	if initial.FilePath == "" {
		return nil, fmt.Errorf("config was not loaded from a file")
	}

	w := &Watcher{
		path:     filepath.Clean(initial.FilePath),
		load:     LoadConfig,
		debounce: defaultDebounce,
		logger:   logger,
		config:   initial,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.watcher = fsWatcher

	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled", zap.String("file", w.path))
	return w, nil
}

// watchLoop monitors for file changes and triggers reloads.
func (w *Watcher) watchLoop() {
	defer close(w.doneCh)
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reloadConfig()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

// reloadConfig loads the new configuration and keeps the old one when it is invalid.
func (w *Watcher) reloadConfig() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = next
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if prev.Search != next.Search {
		w.logger.Info("Search limits changed",
			zap.Int("default_top_k", next.Search.DefaultTopK),
			zap.Int("max_top_k", next.Search.MaxTopK),
			zap.Int("max_vector_length", next.Search.MaxVectorLength),
		)
	}

	for i, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Config callback panicked",
						zap.Int("callback_index", i),
						zap.Any("panic", r),
					)
				}
			}()
			cb(next)
		}()
	}
}

// OnChange registers a callback to be called when configuration changes.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Current returns the current configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops the watcher and waits for its goroutine to exit. It is safe
// to call more than once and from several goroutines.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}
