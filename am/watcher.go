package am

import (
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
)

// ReloadCallback receives each config that loaded and validated.
type ReloadCallback func(*Config) error

// ConfigWatcher reloads a config file when it changes on disk. Bursts of
// events within the debounce window produce a single reload.
type ConfigWatcher struct {
	path     string
	fsw      *fsnotify.Watcher
	load     func() (*Config, error)
	debounce time.Duration

	mu        sync.Mutex
	callbacks []ReloadCallback

	// set by SetValue just before it renames its own write into place
	ownWrite atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var current atomic.Pointer[ConfigWatcher]

// NewConfigWatcher watches path and reloads through the full layered Load.
func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	return newWatcher(path, func() (*Config, error) {
		Reset()
		return Load()
	})
}

// NewFileWatcher watches path and reloads that file alone over defaults.
func NewFileWatcher(path string) (*ConfigWatcher, error) {
	return newWatcher(path, func() (*Config, error) {
		return LoadFromFile(path)
	})
}

func newWatcher(path string, load func() (*Config, error)) (*ConfigWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	// SetValue renames over the file, which would drop a file-level watch.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		fsw:      fsw,
		load:     load,
		debounce: 500 * time.Millisecond,
		stop:     make(chan struct{}),
	}, nil
}

func (cw *ConfigWatcher) OnReload(cb ReloadCallback) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, cb)
	cw.mu.Unlock()
}

// MarkOwnWrite makes the watcher skip the next change event.
func (cw *ConfigWatcher) MarkOwnWrite() { cw.ownWrite.Store(true) }

func (cw *ConfigWatcher) consumeOwnWrite() bool { return cw.ownWrite.CompareAndSwap(true, false) }

func (cw *ConfigWatcher) Start() {
	cw.wg.Add(1)
	go func() {
		defer cw.wg.Done()
		cw.run()
	}()
}

// Stop ends the watch loop and drops any pending reload.
func (cw *ConfigWatcher) Stop() error {
	cw.stopOnce.Do(func() { close(cw.stop) })
	err := cw.fsw.Close()
	cw.wg.Wait()
	return err
}

func (cw *ConfigWatcher) run() {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.stop:
			return

		case ev, ok := <-cw.fsw.Events:
			if !ok {
				return
			}
			if !cw.relevant(ev) {
				continue
			}
			if cw.consumeOwnWrite() {
				logger.Debugw("Skipping config change written by topclients", "file", ev.Name)
				continue
			}
			logger.Infow("Config file changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := cw.reload(); err != nil {
				logger.Errorw("Config reload failed, keeping previous config", logger.FieldError, err)
			}

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

func (cw *ConfigWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != cw.path || isBackupFile(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// reload hands a freshly loaded config to every callback. Callback errors
// are logged and do not stop the others.
func (cw *ConfigWatcher) reload() error {
	cfg, err := cw.load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	cw.mu.Lock()
	callbacks := append([]ReloadCallback(nil), cw.callbacks...)
	cw.mu.Unlock()

	logger.Infow("Config reloaded", "path", cw.path, "callbacks", len(callbacks))
	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.Warnw("Config reload callback failed", logger.FieldError, err)
		}
	}
	return nil
}

var backupSuffix = regexp.MustCompile(`\.back[1-3]$`)

func isBackupFile(path string) bool {
	return backupSuffix.MatchString(filepath.Base(path))
}

// SetGlobalWatcher registers the watcher SetValue notifies of its writes.
func SetGlobalWatcher(w *ConfigWatcher) { current.Store(w) }

func GetGlobalWatcher() *ConfigWatcher { return current.Load() }
