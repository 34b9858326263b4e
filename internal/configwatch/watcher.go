// Package configwatch reloads the configuration file when it changes.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"walletcache/internal/logging"
	"walletcache/pkg/config"
)

// ErrFileRemoved is returned by Run when the watched file goes away
var ErrFileRemoved = errors.New("config file removed")

// ReloadFunc receives every successfully reloaded configuration
type ReloadFunc func(ctx context.Context, cfg *config.Config) error

// Watcher watches one config file and calls a ReloadFunc on each write
type Watcher struct {
	path     string
	log      logging.Sink
	onReload ReloadFunc
	watcher  *fsnotify.Watcher
}

// New creates a watcher for an existing file
func New(path string, onReload ReloadFunc, log logging.Sink) (*Watcher, error) {
	filePath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", filePath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// the directory is watched so saves that replace the file by rename
	// keep being seen
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filePath, err)
	}

	return &Watcher{
		path:     filePath,
		log:      logging.OrNop(log),
		onReload: onReload,
		watcher:  watcher,
	}, nil
}

// Run handles file events until ctx is done or the file is removed.
// Replacing the file by rename, as editors with atomic saves do, counts
// as a write.
// A reload that fails to parse or validate is logged and the previous
// configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.log.Info(ctx, logging.ComponentConfigWatch, logging.ActionStart, "Watching config file", logging.Fields{"path": w.path})
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != "" && filepath.Clean(event.Name) != w.path {
				continue
			}
			if isRemove(event) {
				if _, err := os.Stat(w.path); err == nil {
					// replaced in place
					w.reload(ctx)
					continue
				}
				w.log.Error(ctx, logging.ComponentConfigWatch, logging.ActionStop, "Config file removed, stop watching", ErrFileRemoved, logging.Fields{"path": w.path})
				return ErrFileRemoved
			}
			if isChange(event) {
				w.reload(ctx)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error(ctx, logging.ComponentConfigWatch, logging.ActionReload, "File watcher error", err, logging.Fields{"path": w.path})
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := config.Load(w.path)
	if err != nil {
		w.log.Warn(ctx, logging.ComponentConfigWatch, logging.ActionValidation, "Ignoring invalid config change", logging.Fields{
			"path":  w.path,
			"error": err.Error(),
		})
		return
	}
	if w.onReload == nil {
		return
	}
	if err := w.onReload(ctx, cfg); err != nil {
		w.log.Error(ctx, logging.ComponentConfigWatch, logging.ActionReload, "Config reload rejected", err, logging.Fields{"path": w.path})
		return
	}
	w.log.Info(ctx, logging.ComponentConfigWatch, logging.ActionReload, "Config reloaded", logging.Fields{"path": w.path})
}

func isRemove(event fsnotify.Event) bool {
	return event.Name == "" || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func isChange(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
