package commands

import (
	"os"
	"path/filepath"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/logger"
)

// startConfigWatcher watches the user config file (the one `am set`
// writes) and calls onReload with each valid new config. It returns a stop
// func; a watcher that cannot start is logged and skipped.
func startConfigWatcher(onReload am.ReloadCallback) func() {
	path := am.UserConfigPath()
	if path == "" {
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
		logger.Warnw("Config watcher disabled", "path", path, logger.FieldError, err)
		return func() {}
	}

	w, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config watcher disabled", "path", path, logger.FieldError, err)
		return func() {}
	}
	w.OnReload(onReload)
	am.SetGlobalWatcher(w)
	w.Start()
	logger.Infow("Watching config for changes", "path", path)

	return func() {
		am.SetGlobalWatcher(nil)
		if err := w.Stop(); err != nil {
			logger.Warnw("Config watcher stop failed", logger.FieldError, err)
		}
	}
}
