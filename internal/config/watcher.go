package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultWatchDebounce = 250 * time.Millisecond
	defaultWatchPoll     = 60 * time.Second
)

// Watcher reloads a configuration file when it changes on disk and hands the
// validated result to OnChange. Invalid edits are logged and ignored so the
// running configuration stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *slog.Logger

	debounce     time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	lastMod time.Time
}

// NewWatcher constructs a watcher for path. logger may be nil.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{
		path:         path,
		onChange:     onChange,
		logger:       logger.With(slog.String("component", "config_watcher")),
		debounce:     defaultWatchDebounce,
		pollInterval: defaultWatchPoll,
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Run blocks until ctx is cancelled. fsnotify watches the parent directory so
// editors that replace the file atomically are still observed; a slow mtime
// poll runs alongside as a safety net and as the only mechanism when fsnotify
// is unavailable.
func (w *Watcher) Run(ctx context.Context) {
	events, errs, closeFn := w.startNotify()
	defer closeFn()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(w.debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("config watch error; polling continues",
				slog.String("event_type", "config_watch_error"),
				slog.String("error_hint", "check the config directory is still readable"),
				slog.String("impact", "config changes may be picked up late"),
				slog.Any("error", err),
			)
		case <-debounce:
			debounce = nil
			w.reload()
		case <-ticker.C:
			w.reloadIfChanged()
		}
	}
}

func (w *Watcher) startNotify() (<-chan fsnotify.Event, <-chan error, func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable; falling back to polling",
			slog.String("event_type", "config_watch_fallback"),
			slog.String("error_hint", "raise fs.inotify.max_user_instances"),
			slog.String("impact", "config changes are detected on the poll interval only"),
			slog.Any("error", err),
		)
		return nil, nil, func() {}
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("config directory watch failed; falling back to polling",
			slog.String("event_type", "config_watch_fallback"),
			slog.String("error_hint", "ensure the config directory exists"),
			slog.String("impact", "config changes are detected on the poll interval only"),
			slog.Any("error", err),
		)
		_ = watcher.Close()
		return nil, nil, func() {}
	}
	return watcher.Events, watcher.Errors, func() { _ = watcher.Close() }
}

func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	w.mu.Unlock()
	if changed {
		w.reload()
	}
}

func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	cfg, err := loadFile(w.path, true)
	if err != nil {
		w.logger.Warn("config reload rejected; keeping running configuration",
			slog.String("event_type", "config_reload_rejected"),
			slog.String("error_hint", "run 'vigil validate' to see the problem"),
			slog.String("impact", "edited settings are not applied"),
			slog.Any("error", err),
		)
		w.mu.Lock()
		w.lastMod = info.ModTime()
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.lastMod = info.ModTime()
	w.mu.Unlock()
	w.logger.Info("config reloaded",
		slog.String("event_type", "config_reloaded"),
		slog.String("path", w.path),
	)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
