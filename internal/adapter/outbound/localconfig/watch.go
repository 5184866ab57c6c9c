package localconfig

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch loads the file once and then re-loads it on every subsequent write
// or atomic rename into place, until ctx is cancelled. Parse errors on a
// reload are logged and skipped rather than torn down -- a transient
// half-written file must not drop the last good routing state.
func (l *Loader) Watch(ctx context.Context) error {
	if err := l.Load(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(l.Path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Rename != 0 {
				// A rename-over-target (atomic replace) drops the inode
				// fsnotify was watching; re-add so later writes keep firing.
				_ = watcher.Remove(l.Path)
				if err := watcher.Add(l.Path); err != nil {
					l.log().Warn("localconfig: re-watch after rename failed", "path", l.Path, "error", err)
				}
			}
			if err := l.Load(); err != nil {
				l.log().Error("localconfig: reload failed, keeping last good state", "path", l.Path, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log().Error("localconfig: watch error", "path", l.Path, "error", err)
		}
	}
}
