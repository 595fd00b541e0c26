package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"inkframe/internal/logging"
)

// watchDebounce coalesces bursts of filesystem events (editors write
// manifests in several steps) into a single reload.
const watchDebounce = 2 * time.Second

// Watch reloads the registry when manifests under root change. It blocks
// until ctx is cancelled, so run it in its own goroutine.
//
// fsnotify is non-recursive, so the root and every plugin directory get
// their own watch; directories created later are added when the root
// reports them. Edits to an existing manifest therefore reload without
// waiting for the periodic rescan job.
func (r *Registry) Watch(ctx context.Context, root string, logger *slog.Logger) error {
	logger = logging.Default(logger).With("component", "registry-watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addPluginWatches(watcher, root, logger); err != nil {
		// A missing root is tolerated; the rescan job covers late creation.
		logger.Warn("cannot watch plugins root", "path", root, "error", err)
		<-ctx.Done()
		return nil
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						logger.Warn("cannot watch plugin dir", "path", ev.Name, "error", err)
					}
				}
			}
			logger.Debug("plugins tree changed", "event", ev.String())
			// Leading-window coalescing: a steady stream of events must
			// not postpone the reload forever.
			if pending == nil {
				pending = time.After(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-pending:
			pending = nil
			if n, err := r.Reload(); err != nil {
				logger.Error("registry reload failed", "error", err)
			} else {
				logger.Info("registry reloaded", "plugins", n)
			}
		}
	}
}

// addPluginWatches watches root and each existing plugin directory under it.
// A directory that cannot be watched is skipped with a warning; only a
// failure on the root itself is an error.
func addPluginWatches(watcher *fsnotify.Watcher, root string, logger *slog.Logger) error {
	if err := watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if err := watcher.Add(dir); err != nil {
			logger.Warn("cannot watch plugin dir", "path", dir, "error", err)
		}
	}
	return nil
}
