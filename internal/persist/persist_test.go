package persist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

func newTestGroup(t *testing.T) *asyncutil.Group {
	t.Helper()
	g := asyncutil.NewGroup(context.Background())
	t.Cleanup(g.Close)
	return g
}

func TestLoadWorkspaceMissingFileReturnsEmpty(t *testing.T) {
	group := newTestGroup(t)
	ws := LoadWorkspace(group, filepath.Join(t.TempDir(), "workspace.json"))
	assert.Empty(t, ws.Projects())
}

func TestLoadWorkspaceQuarantinesMalformedFile(t *testing.T) {
	group := newTestGroup(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "workspace.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	ws := LoadWorkspace(group, path)
	assert.Empty(t, ws.Projects())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original file should have been renamed away")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var foundQuarantine bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".bad" {
			foundQuarantine = true
		}
	}
	assert.True(t, foundQuarantine, "expected a quarantined .bad file")
}

func TestLoadWorkspaceRoundTripsValidFile(t *testing.T) {
	group := newTestGroup(t)
	ws := workspace.New(group)
	require.NoError(t, ws.AddProject(&workspace.Project{ID: workspace.NewProjectID(), Name: "demo"}))

	data, err := json.Marshal(ws)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "workspace.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded := LoadWorkspace(group, path)
	assert.Len(t, loaded.Projects(), 1)
}

func TestWorkspaceStoreDebouncesRapidMutations(t *testing.T) {
	group := newTestGroup(t)
	ws := workspace.New(group)

	writes := make(chan []byte, 16)
	store := NewWorkspaceStore(group, filepath.Join(t.TempDir(), "workspace.json"), ws)
	store.writeHook = func(data []byte) error {
		writes <- data
		return nil
	}
	unsub := store.Watch()
	defer unsub()

	for i := 0; i < 10; i++ {
		require.NoError(t, ws.AddProject(&workspace.Project{ID: workspace.NewProjectID()}))
	}

	select {
	case <-writes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debounced write")
	}

	time.Sleep(DebounceInterval + 200*time.Millisecond)
	assert.LessOrEqual(t, len(writes), 1, "ten rapid mutations should debounce to at most one extra write")
}

func TestWorkspaceStoreFlushForcesImmediateWrite(t *testing.T) {
	group := newTestGroup(t)
	ws := workspace.New(group)
	require.NoError(t, ws.AddProject(&workspace.Project{ID: workspace.NewProjectID()}))

	path := filepath.Join(t.TempDir(), "workspace.json")
	store := NewWorkspaceStore(group, path, ws)
	store.MarkDirty()
	require.NoError(t, store.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "projects")
}

func TestAtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, atomicWrite(path, []byte(`{"a":1}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}
