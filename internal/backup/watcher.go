package backup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RefreshFunc is called after a debounced burst of backup-file changes.
type RefreshFunc func()

// Watch starts an fsnotify watcher over the backup roots and invokes
// refresh once per debounced burst of .one file changes, until ctx is
// cancelled. Backup rotation writes whole new files, so individual event
// kinds do not matter; any create/write/remove/rename of a .one file marks
// the index stale.
//
// New directories created at runtime (fresh notebooks, rotation
// subfolders) are added to the watch list automatically.
func Watch(ctx context.Context, roots []string, debounce time.Duration, logger *slog.Logger, refresh RefreshFunc) error {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := 0
	for _, root := range roots {
		if err := addDirsRecursive(w, root); err != nil {
			logger.Warn("watcher: root not watchable", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		watched++
	}
	if watched == 0 {
		logger.Warn("watcher: no watchable roots, change detection disabled")
		<-ctx.Done()
		return nil
	}

	logger.Info("watcher: started", slog.Int("roots", watched))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			logger.Debug("watcher: refresh triggered")
			refresh()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// A new notebook directory may already contain files.
					schedule()
					continue
				}
			}

			if !strings.HasSuffix(strings.ToLower(ev.Name), ".one") {
				continue
			}
			logger.Debug("watcher: backup change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
