package persist

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/logging"
)

// settingsWatcherDebounce matches the teacher's stateWatcher debounce; an
// editor's save-as-rename-over-original dance otherwise fires several
// events in quick succession for one logical edit.
const settingsWatcherDebounce = 150 * time.Millisecond

// SettingsWatcher reloads settings.json whenever it or keybindings.json
// changes on disk outside the process, so an external editor's edits take
// effect without a restart. Only settings.json is parsed on reload;
// keybindings.json content is not loaded. Adapted from the teacher's
// internal/app.stateWatcher: watch the containing directory rather than
// the file itself (renames replace the inode), debounce by resetting a
// single timer.
type SettingsWatcher struct {
	watcher *fsnotify.Watcher
	paths   *gridconfig.Paths
	onLoad  func(cfg *gridconfig.Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewSettingsWatcher starts watching paths.ConfigPath's and
// paths.KeybindingsPath's containing directory. onLoad is invoked (on the
// debounce timer's goroutine) with the freshly reloaded config after a
// debounced batch of changes.
func NewSettingsWatcher(group *asyncutil.Group, paths *gridconfig.Paths, onLoad func(cfg *gridconfig.Config)) (*SettingsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(paths.Home); err != nil {
		_ = w.Close()
		return nil, err
	}

	sw := &SettingsWatcher{watcher: w, paths: paths, onLoad: onLoad}
	group.Go("persist-settings-watch", sw.run)
	return sw, nil
}

func (sw *SettingsWatcher) run(ctx context.Context) {
	defer sw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if sw.relevant(event.Name) && event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				sw.scheduleReload()
			}
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (sw *SettingsWatcher) relevant(name string) bool {
	clean := filepath.Clean(name)
	return clean == filepath.Clean(sw.paths.ConfigPath) || clean == filepath.Clean(sw.paths.KeybindingsPath)
}

func (sw *SettingsWatcher) scheduleReload() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer == nil {
		sw.timer = time.AfterFunc(settingsWatcherDebounce, sw.reload)
	} else {
		sw.timer.Reset(settingsWatcherDebounce)
	}
}

func (sw *SettingsWatcher) reload() {
	cfg, err := gridconfig.Load(sw.paths)
	if err != nil {
		logging.Warn("persist: settings reload failed: %v", err)
		return
	}
	if sw.onLoad != nil {
		sw.onLoad(cfg)
	}
}

// Close stops the watcher; safe to call even if the underlying fsnotify
// watcher already closed itself after ctx was cancelled.
func (sw *SettingsWatcher) Close() error {
	sw.mu.Lock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.mu.Unlock()
	return sw.watcher.Close()
}
