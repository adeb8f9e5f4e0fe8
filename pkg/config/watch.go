package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

// reloadOps are the operations on the targets file that trigger a reload.
// Atomic saves rename a temporary file over it, which its directory reports
// as a create.
//
const reloadOps = fsnotify.Write | fsnotify.Create

// Watch monitors the targets file for changes, calling onChange with the
// re-resolved targets each time the file is written or replaced. It runs
// until ctx is cancelled.
//
// The file's directory is watched rather than the file itself so that the
// watch survives the file being replaced.
//
// A reload that fails (unreadable file, invalid yaml, no targets left) is
// logged and onChange is not called, leaving the previous targets active.
//
func (c *Config) Watch(
	ctx context.Context, log logr.Logger, onChange func(target.Set),
) error {
	path, err := filepath.Abs(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("abs '%s': %w", c.ConfigFile, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch '%s': %w", dir, err)
	}

	log = log.WithValues("path", path)
	log.Info("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isTargetsFileEvent(event, path) {
				continue
			}

			set, err := c.Targets()
			if err != nil {
				log.Error(err, "reload failed, keeping previous targets")
				continue
			}

			log.Info("reloaded", "targets", set.Len())
			onChange(set)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Error(err, "watcher error")
		}
	}
}

// isTargetsFileEvent tells whether a directory event concerns the targets
// file at `path` in a way that may have changed its contents.
//
func isTargetsFileEvent(event fsnotify.Event, path string) bool {
	name, err := filepath.Abs(event.Name)
	if err != nil || filepath.Clean(name) != path {
		return false
	}

	return event.Op&reloadOps != 0
}
