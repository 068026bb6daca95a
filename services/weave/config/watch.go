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
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for further writes before
// reloading. Editors often write a file in several steps.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and passes each valid result to
// fn. Invalid or unreadable files are logged and skipped; the previous
// configuration stays in effect.
//
// Description:
//
//	The parent directory is watched rather than the file, so editors that
//	save by rename are handled. Events are debounced by debounce (or
//	DefaultDebounce when zero). Watch blocks until ctx is done.
//
// Inputs:
//
//	ctx - Stops the watcher.
//	path - Config file. "" means DefaultPath.
//	debounce - Quiet period before reloading.
//	logger - Receives reload failures. nil means slog.Default().
//	fn - Called on the watcher goroutine with each reloaded config.
//
// Outputs:
//
//	error - Non-nil if the watcher could not start. nil after ctx ends.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, fn func(Config)) error {
	path, err := resolve(path)
	if err != nil {
		return err
	}
	path = filepath.Clean(path)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "config_watcher"), slog.String("path", path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload skipped", slog.String("error", err.Error()))
				continue
			}
			logger.Info("config reloaded")
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
