package workspace

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/layout"
)

func newTestWorkspace(t *testing.T) (*Workspace, *asyncutil.Group) {
	t.Helper()
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)
	return New(group), group
}

func TestAddRemoveProjectBumpsVersion(t *testing.T) {
	w, _ := newTestWorkspace(t)
	before := w.StateVersion()

	p := &Project{ID: NewProjectID(), Name: "demo", Path: "/tmp/demo"}
	require.NoError(t, w.AddProject(p))
	assert.Greater(t, w.StateVersion(), before)

	got, ok := w.Project(p.ID)
	require.True(t, ok)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, layout.KindTerminal, got.Layout.Kind)

	require.NoError(t, w.RemoveProject(p.ID))
	_, ok = w.Project(p.ID)
	assert.False(t, ok)
}

func TestFolderLifecycleKeepsInvariants(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p1 := &Project{ID: NewProjectID(), Name: "a"}
	p2 := &Project{ID: NewProjectID(), Name: "b"}
	require.NoError(t, w.AddProject(p1))
	require.NoError(t, w.AddProject(p2))

	folder := &Folder{ID: NewFolderID(), Name: "group"}
	require.NoError(t, w.CreateFolder(folder))
	require.NoError(t, w.MoveIntoFolder(p1.ID, folder.ID))
	require.NoError(t, w.Validate())

	require.NoError(t, w.DeleteFolder(folder.ID))
	require.NoError(t, w.Validate())
	// p1 should be back at top level.
	w.mu.RLock()
	idx := indexOfString(w.order, string(p1.ID))
	w.mu.RUnlock()
	assert.GreaterOrEqual(t, idx, 0)
}

func TestFocusStackFIFOBound(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p := &Project{ID: NewProjectID()}
	require.NoError(t, w.AddProject(p))

	for i := 0; i < focusStackBound+5; i++ {
		w.PushFocus(FocusEntry{ProjectID: p.ID, Path: layout.Path{}})
	}
	w.mu.RLock()
	depth := len(w.focusStack)
	w.mu.RUnlock()
	assert.Equal(t, focusStackBound, depth)
}

func TestPopFocusToValidSkipsStaleEntries(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p := &Project{ID: NewProjectID()}
	require.NoError(t, w.AddProject(p))

	require.NoError(t, w.WithLayoutNode(p.ID, nil, func(n *layout.Node) {
		n.Kind = layout.KindSplit
		n.Sizes = []float32{0.5, 0.5}
		n.Children = []*layout.Node{layout.NewTerminal(), layout.NewTerminal()}
	}))

	w.PushFocus(FocusEntry{ProjectID: p.ID, Path: layout.Path{5}}) // stale: out of range
	w.PushFocus(FocusEntry{ProjectID: p.ID, Path: layout.Path{0}}) // valid

	entry, ok := w.PopFocusToValid()
	require.True(t, ok)
	assert.Equal(t, layout.Path{0}, entry.Path)
}

func TestWithLayoutNodeNormalizesAfterMutation(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p := &Project{ID: NewProjectID()}
	require.NoError(t, w.AddProject(p))

	require.NoError(t, w.WithLayoutNode(p.ID, nil, func(n *layout.Node) {
		n.Kind = layout.KindSplit
		n.Sizes = []float32{1.0}
		n.Children = []*layout.Node{layout.NewTerminalFor("only")}
	}))

	got, _ := w.Project(p.ID)
	assert.Equal(t, layout.KindTerminal, got.Layout.Kind)
	assert.Equal(t, layout.Id("only"), *got.Layout.TerminalId)
}

func TestSubscribeCoalescesRapidMutations(t *testing.T) {
	w, _ := newTestWorkspace(t)
	notified := make(chan uint64, 8)
	unsub := w.Subscribe(func(v uint64) { notified <- v })
	defer unsub()

	for i := 0; i < 20; i++ {
		p := &Project{ID: NewProjectID()}
		require.NoError(t, w.AddProject(p))
	}

	select {
	case v := <-notified:
		assert.Equal(t, w.StateVersion(), v)
	case <-time.After(time.Second):
		t.Fatal("expected at least one notification")
	}
	// Coalescing means far fewer than 20 notifications fired.
	time.Sleep(10 * time.Millisecond)
	assert.Less(t, len(notified), 20)
}

func TestRoundTripJSON(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p := &Project{ID: NewProjectID(), Name: "roundtrip"}
	require.NoError(t, w.AddProject(p))
	require.NoError(t, w.WithLayoutNode(p.ID, nil, func(n *layout.Node) {
		n.Kind = layout.KindSplit
		n.Sizes = []float32{0.5, 0.5}
		n.Children = []*layout.Node{layout.NewTerminalFor("x"), layout.NewTerminal()}
	}))

	data, err := json.Marshal(w)
	require.NoError(t, err)

	group2 := asyncutil.NewGroup(context.Background())
	defer group2.Close()
	restored := New(group2)
	require.NoError(t, json.Unmarshal(data, restored))

	got, ok := restored.Project(p.ID)
	require.True(t, ok)
	assert.Equal(t, "roundtrip", got.Name)
	assert.Equal(t, layout.KindSplit, got.Layout.Kind)
}
