// Package persist implements debounced, atomic writes of the workspace
// and settings documents, quarantining an unparsable file on load instead
// of silently discarding it. The atomic write (temp file,
// fsync, rename) and debounce-by-resetting-a-timer approach are adapted
// from the teacher's own internal/data.WorkspaceStore.Save and
// internal/app.stateWatcher.scheduleNotify.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

// DebounceInterval is the time after the last mutation before
// workspace.json is rewritten.
const DebounceInterval = 500 * time.Millisecond

// WorkspaceStore debounces and atomically persists one Workspace to a
// single workspace.json file.
type WorkspaceStore struct {
	path  string
	group *asyncutil.Group

	mu    sync.Mutex
	dirty bool
	timer *asyncutil.Timer

	ws *workspace.Workspace

	// writeHook lets tests observe/intercept writes without touching disk.
	writeHook func(data []byte) error
}

// NewWorkspaceStore creates a store that will persist ws to path, using
// group for its debounce timer's lifetime.
func NewWorkspaceStore(group *asyncutil.Group, path string, ws *workspace.Workspace) *WorkspaceStore {
	return &WorkspaceStore{path: path, group: group, ws: ws}
}

// LoadWorkspace reads workspace.json at path into a fresh Workspace. A
// missing file yields an empty Workspace. A malformed file is quarantined
// (renamed with a timestamp suffix) and an empty Workspace is returned,
// never an error that would block startup.
func LoadWorkspace(group *asyncutil.Group, path string) *workspace.Workspace {
	ws := workspace.New(group)

	data, err := os.ReadFile(path)
	if err != nil {
		return ws
	}

	if err := json.Unmarshal(data, ws); err != nil {
		quarantine(path)
		logging.Warn("persist: workspace.json failed to parse, quarantined: %v", err)
		return workspace.New(group)
	}
	if err := ws.Validate(); err != nil {
		quarantine(path)
		logging.Warn("persist: workspace.json failed validation, quarantined: %v", err)
		return workspace.New(group)
	}
	return ws
}

func quarantine(path string) {
	suffix := time.Now().UTC().Format("20060102T150405Z")
	_ = os.Rename(path, fmt.Sprintf("%s.%s.bad", path, suffix))
}

// MarkDirty schedules a debounced write. Called after every
// state-mutating Workspace operation; the observer installed by Watch is
// the usual caller.
func (s *WorkspaceStore) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.group.AfterFunc("persist-workspace-debounce", DebounceInterval, s.flush)
}

// Watch subscribes to ws's notifier so every mutation (coalesced, per
// workspace.Workspace's own batching) marks the store dirty. Returns an
// unsubscribe func.
func (s *WorkspaceStore) Watch() func() {
	return s.ws.Subscribe(func(uint64) { s.MarkDirty() })
}

// Flush forces an immediate write if dirty, bypassing the debounce. Used
// on graceful shutdown so no mutation is lost.
func (s *WorkspaceStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	wasDirty := s.dirty
	s.mu.Unlock()
	if !wasDirty {
		return nil
	}
	return s.writeNow()
}

func (s *WorkspaceStore) flush() {
	if err := s.writeNow(); err != nil {
		logging.Error("persist: workspace.json write failed: %v", err)
		// Leave dirty set so the next debounce tick retries.
		return
	}
}

func (s *WorkspaceStore) writeNow() error {
	data, err := json.MarshalIndent(s.ws, "", "  ")
	if err != nil {
		return err
	}

	if s.writeHook != nil {
		if err := s.writeHook(data); err != nil {
			return err
		}
		s.mu.Lock()
		s.dirty = false
		s.mu.Unlock()
		return nil
	}

	if err := atomicWrite(s.path, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// atomicWrite writes data to a temp file alongside path, fsyncs it, then
// renames it over path, so a crash mid-write never leaves a half-written
// file, mirroring the teacher's WorkspaceStore.Save.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
