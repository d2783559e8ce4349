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
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Source hands out the current configuration. Readers call Current once per
// request and use that snapshot throughout.
type Source struct {
	cur atomic.Pointer[Config]
}

// NewSource returns a Source holding cfg.
func NewSource(cfg *Config) *Source {
	s := &Source{}
	s.cur.Store(cfg)
	return s
}

// Current returns the active configuration. It must not be mutated.
func (s *Source) Current() *Config { return s.cur.Load() }

// Store replaces the active configuration.
func (s *Source) Store(cfg *Config) { s.cur.Store(cfg) }

// LoaderFunc builds a configuration from an overlay path.
type LoaderFunc func(path string) (*Config, error)

// Watcher reloads the overlay file into a Source when it changes. Invalid
// files are logged and ignored; the previous configuration stays active.
type Watcher struct {
	path     string
	src      *Source
	load     LoaderFunc
	logger   *slog.Logger
	debounce time.Duration
	reloads  atomic.Int64

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for path. load is usually Load.
func NewWatcher(path string, src *Source, load LoaderFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		src:      src,
		load:     load,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Start begins watching. The directory is watched rather than the file so
// editors that replace the file by rename are seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx)
	w.logger.Info("config: watching overlay", slog.String("path", w.path))
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done, fsw := w.doneCh, w.fsw
	w.mu.Unlock()

	<-done
	if err := fsw.Close(); err != nil {
		w.logger.Warn("config: close watcher", slog.String("error", err.Error()))
	}
}

// Reloads returns how many reloads were applied.
func (w *Watcher) Reloads() int64 { return w.reloads.Load() }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config: watcher error", slog.String("error", err.Error()))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config: reload rejected, keeping previous",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.src.Store(cfg)
	w.reloads.Add(1)
	w.logger.Info("config: reloaded", slog.String("path", w.path))
}
