package main

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchPolicyFile watches path's parent directory (fsnotify on Linux
// surfaces rewrites as remove+create, not a Write on the original inode;
// watching the directory rather than the file survives editors that
// replace-then-rename) and reloads path into target whenever it changes.
// Returns the watcher so the caller can Close it on shutdown; a watch
// failure is logged and treated as non-fatal, since the demo still runs
// fine on the policy it loaded at startup.
func watchPolicyFile(path string, target *reloadablePolicy) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("policy hot-reload disabled: could not create watcher", "error", err)
		return nil
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("policy hot-reload disabled: could not watch directory", "dir", dir, "error", err)
		_ = watcher.Close()
		return nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				pf, err := loadPolicyFile(path)
				if err != nil {
					slog.Warn("policy reload failed, keeping previous policy", "path", path, "error", err)
					continue
				}
				target.set(pf.toPolicy())
				slog.Info("policy reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("policy watcher error", "error", err)
			}
		}
	}()

	return watcher
}
