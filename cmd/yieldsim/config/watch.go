// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config at path whenever it changes.
//
// Description:
//
//	Watches the parent directory so that editors which replace the file by
//	rename are still seen. Each successful reload calls fn with the new
//	config. A file that fails to parse or validate is logged and skipped;
//	the previous config stays in effect.
//
// Inputs:
//
//	ctx - Stops the watcher when done.
//	path - Config file to watch.
//	logger - Receives reload results. Nil uses slog.Default().
//	fn - Called with every successfully reloaded config.
//
// Outputs:
//
//	error - Non-nil if the watcher cannot start. Blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	var pending <-chan time.Time
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(reloadDelay)
			}

		case <-pending:
			pending = nil
			cfg, err := reload(path)
			if err != nil {
				logger.Warn("Config reload failed, keeping previous config",
					"path", path,
					"error", err)
				continue
			}
			logger.Info("Config reloaded", "path", path)
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", "error", err)
		}
	}
}

func reload(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}
