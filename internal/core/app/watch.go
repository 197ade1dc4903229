package app

import "scriptls/internal/core/watcher"

// StartWatcher follows on-disk changes under the workspace roots. Must be
// called on the loop goroutine after Start has set the roots.
func (a *App) StartWatcher() error {
	if a.activeWatcher != nil {
		return nil
	}
	w, err := watcher.NewWatcher(a.Config.Watch.Debounce, a.filter, a.FilesChanged)
	if err != nil {
		return err
	}
	if err := w.Watch(a.roots); err != nil {
		_ = w.Close()
		return err
	}
	a.activeWatcher = w
	return nil
}
