package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange whenever path is written, created or replaced, until
// ctx is done. The watch is re-added after rename and remove events
// (atomic saves replace the inode).
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func()) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn("close collections watcher", "err", err)
		}
	}()
	if err := w.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	log.Info("watching collections file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				if !waitForFile(ctx, path, 200*time.Millisecond) {
					log.Warn("collections file removed and not replaced", "path", path)
					continue
				}
				if err := w.Add(path); err != nil {
					log.Warn("re-add collections watch", "path", path, "err", err)
				}
			}
			log.Debug("collections file changed", "path", path, "op", ev.Op.String())
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("collections watcher error", "err", err)
		}
	}
}

func waitForFile(ctx context.Context, path string, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	}
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
