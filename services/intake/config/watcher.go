// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher follows the config file and republishes its clinic section.
//
// # Description
//
// The parent directory is watched rather than the file, so atomic
// rename-into-place saves and Kubernetes ConfigMap symlink swaps are seen.
// Events for other files are ignored. After a quiet period of DefaultDebounce
// the file is reloaded with Load; a file that fails to parse or validate is
// logged and the previous clinic data stays in effect.
//
// # Thread Safety
//
// Current is lock-free and safe to call from any goroutine. A turn reads
// Current once, so a reload never changes clinic data mid-turn.
type Watcher struct {
	path     string
	current  atomic.Pointer[clinic.Config]
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*clinic.Config)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

var _ clinic.Source = (*Watcher)(nil)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithReloadHook is called after each successful reload.
func WithReloadHook(fn func(*clinic.Config)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher publishes initial and prepares to watch path. Call Start to
// begin watching.
func NewWatcher(path string, initial *clinic.Config, opts ...WatcherOption) (*Watcher, error) {
	if initial == nil {
		return nil, fmt.Errorf("config watcher: initial clinic config is nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		watcher:  fw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(initial)
	return w, nil
}

// Current implements clinic.Source.
func (w *Watcher) Current() *clinic.Config {
	return w.current.Load()
}

// Start watches the file's directory until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching clinic config", "path", w.path)
	go w.run(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

// Reload loads the file now and publishes its clinic section.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.current.Store(cfg.Clinic)
	if w.onReload != nil {
		w.onReload(cfg.Clinic)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// relevant reports whether event can change the file's content. A symlink
// swap shows up as an event on a sibling entry, so any create in the
// directory counts when the target is a symlink.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	if filepath.Clean(event.Name) == w.path {
		return true
	}
	if fi, err := os.Lstat(w.path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return event.Has(fsnotify.Create)
	}
	return false
}

func (w *Watcher) reload() {
	if err := w.Reload(); err != nil {
		w.logger.Error("clinic config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	c := w.Current()
	w.logger.Info("clinic config reloaded",
		"path", w.path,
		"practitioners", len(c.Practitioners),
		"states", len(c.States),
	)
}
