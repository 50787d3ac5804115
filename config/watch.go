package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jpalmerr/stockpulse/internal/settings"
)

// DefaultReloadDelay is how long [Watch] waits after the last change event
// before reading the file. Editors often write a file in several steps.
const DefaultReloadDelay = 250 * time.Millisecond

// ApplyFunc receives the settings block of a changed config file.
type ApplyFunc func(settings.Settings) error

// Watch reloads the config file at path whenever it changes and hands the
// settings block to apply if it differs from the last one seen.
//
// Only the settings block is live; other changes need a restart and are
// logged as such. A file that fails to parse or validate is ignored and the
// running settings are kept. Watch blocks until ctx is cancelled and returns
// nil, or returns an error if the watcher cannot be set up. apply is never
// called after Watch returns.
func Watch(ctx context.Context, path string, apply ApplyFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer w.Close()

	// watch the directory: editors replace files by rename, which drops a
	// watch on the file itself
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	r := &reloader{path: path, apply: apply, logger: logger}
	if cfg, err := Load(path); err == nil {
		r.last = cfg
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
		// waits for a reload that already fired
		r.stop()
	}()

	file := filepath.Base(path)
	logger.Debug("config watcher started", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DefaultReloadDelay, r.reload)
			timerMu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "path", path, "error", err)
		}
	}
}

// reloader compares each reload with the last good config.
type reloader struct {
	path   string
	apply  ApplyFunc
	logger *slog.Logger

	mu      sync.Mutex
	last    *Config
	stopped bool
}

// stop blocks until any running reload returns; later reloads do nothing.
func (r *reloader) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *reloader) reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Warn("config reload failed, keeping current settings", "path", r.path, "error", err)
		return
	}
	prev := r.last
	r.last = cfg

	if prev != nil && restartRequired(prev, cfg) {
		r.logger.Warn("config changes outside settings need a restart", "path", r.path)
	}

	if cfg.Settings == nil {
		return
	}
	if prev != nil && prev.Settings != nil && *prev.Settings == *cfg.Settings {
		return
	}
	if err := r.apply(cfg.Settings.Settings()); err != nil {
		r.logger.Warn("reloaded settings rejected", "path", r.path, "error", err)
		return
	}
	r.logger.Info("settings reloaded from config", "path", r.path)
}

// restartRequired reports whether anything besides the settings block changed.
func restartRequired(a, b *Config) bool {
	x, y := *a, *b
	x.Settings, y.Settings = nil, nil
	return !reflect.DeepEqual(x, y)
}
