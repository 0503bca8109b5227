package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the external catalog whenever its file changes. It blocks
// until ctx is cancelled and is a no-op error for engines built from the
// embedded catalog. Events are debounced because editors fire several per
// save.
func (e *Engine) Watch(ctx context.Context) error {
	if e.path == "" {
		return fmt.Errorf("engine has no signature file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create signature watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files by rename, which drops
	// a direct file watch.
	dir := filepath.Dir(e.path)
	file := filepath.Base(e.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch signature directory %s: %w", dir, err)
	}
	slog.Info("Watching signature file", "path", e.path)

	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := e.Reload(); err != nil {
					slog.Error("Signature reload failed, keeping previous catalog", "error", err)
					return
				}
				slog.Info("Signature catalog reloaded", "path", e.path, "signatures", e.Count())
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Signature watcher error", "error", err)
		}
	}
}
