package allowlist

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch starts a background fsnotify watcher on path's directory and
// reloads on every write/create event that touches path. If the watcher
// can't start, the error is returned together with a no-op stop function,
// and the allowlist stays at its last successfully loaded snapshot.
func Watch(l *Loader, path string, log *zap.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return func() {}, err
	}

	done := make(chan struct{})
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
				count := l.Load(path)
				if count < 0 {
					log.Warn("allowlist reload failed, keeping previous snapshot", zap.String("path", path))
				} else {
					log.Info("allowlist reloaded", zap.Int("entries", count))
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("allowlist watcher error", zap.Error(werr))
			case <-done:
				watcher.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
