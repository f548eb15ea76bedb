package remoteclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/remoteserver"
	"github.com/andyrewlee/gridmux/internal/term"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

// fakeHandle/fakeSessions/fakeApps/fakeSnapshots mirror the fixtures
// remoteserver's own tests use, duplicated here (rather than imported)
// since they are unexported test-only types in that package.
type fakeHandle struct {
	sent [][]byte
}

func (h *fakeHandle) SendInput(data []byte) error {
	h.sent = append(h.sent, append([]byte(nil), data...))
	return nil
}
func (h *fakeHandle) SendSpecialKey(term.SpecialKey) error { return nil }
func (h *fakeHandle) Resize(cols, rows int)                {}
func (h *fakeHandle) VisibleCells() []term.VisibleCell     { return nil }
func (h *fakeHandle) Cursor() term.CursorState             { return term.CursorState{} }

type fakeSessions struct {
	handles map[layout.Id]*fakeHandle
}

func newFakeSessions() *fakeSessions { return &fakeSessions{handles: make(map[layout.Id]*fakeHandle)} }

func (s *fakeSessions) Get(id layout.Id) (dispatch.TerminalHandle, bool) {
	h, ok := s.handles[id]
	return h, ok
}
func (s *fakeSessions) Create(cols, rows int) (layout.Id, dispatch.TerminalHandle, error) {
	id := layout.Id(fmt.Sprintf("term-%d", len(s.handles)+1))
	h := &fakeHandle{}
	s.handles[id] = h
	return id, h, nil
}
func (s *fakeSessions) Close(id layout.Id) error { delete(s.handles, id); return nil }

type fakeApps struct{}

func (fakeApps) Create(string) (string, error) { return "", nil }
func (fakeApps) Close(string) error            { return nil }
func (fakeApps) HandleAction(appID string, action json.RawMessage) dispatch.ActionResult {
	return dispatch.SuccessValue(map[string]string{"app_id": appID})
}

type fakeSnapshots struct{}

func (fakeSnapshots) Snapshot(terminalID string) ([]byte, error) {
	return []byte("snapshot:" + terminalID), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *remoteserver.TokenStore, layout.Id) {
	t.Helper()
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)

	ws := workspace.New(group)
	sessions := newFakeSessions()
	termID, _, err := sessions.Create(80, 24)
	require.NoError(t, err)
	p := &workspace.Project{ID: workspace.NewProjectID(), Name: "demo", Layout: layout.NewTerminalFor(termID)}
	require.NoError(t, ws.AddProject(p))

	backend := &dispatch.LocalBackend{Workspace: ws, Sessions: sessions, Apps: fakeApps{}}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bridge := remoteserver.NewBridge(ctx, backend)

	tokens := remoteserver.NewTokenStore()
	srv := remoteserver.NewServer(remoteserver.Config{}, bridge, ws, sessions, tokens, remoteserver.NewPTYBroadcaster(), remoteserver.NewAppStateBroadcaster(), fakeSnapshots{})
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv, tokens, termID
}

func TestClientPairFetchesStateAndMirrorsTerminal(t *testing.T) {
	httpSrv, tokens, termID := newTestServer(t)
	code := tokens.IssuePairingCode()

	c := NewClient(Config{BaseURL: httpSrv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Pair(ctx, code))
	require.NoError(t, c.RefreshState(ctx))

	shadow, ok := c.ShadowTerminal(termID)
	require.True(t, ok, "expected a shadow terminal to be created for the project's layout leaf")

	shadow.ApplyLiveOutput([]byte("hello"))
	cells := shadow.VisibleCells()
	require.NotEmpty(t, cells)
	assert.Equal(t, 'h', cells[0].Char)
}

func TestClientRunConnectsAndStreamsLiveOutput(t *testing.T) {
	httpSrv, tokens, termID := newTestServer(t)
	code := tokens.IssuePairingCode()

	c := NewClient(Config{BaseURL: httpSrv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Pair(ctx, code))

	states := make(chan State, 8)
	c.OnStateChange(func(s State) { states <- s })

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go c.Run(runCtx)

	require.Eventually(t, func() bool {
		return c.State() == Paired
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := c.ShadowTerminal(termID)
		return ok
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		_, subscribed := c.streamIDs[termID]
		c.mu.Unlock()
		return subscribed
	}, time.Second, 10*time.Millisecond)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	d1 := backoffDelay(1)
	d2 := backoffDelay(2)
	d10 := backoffDelay(10)

	assert.GreaterOrEqual(t, d1, backoffStart*8/10)
	assert.LessOrEqual(t, d1, backoffStart*12/10)
	assert.Greater(t, d2, d1/2)
	assert.LessOrEqual(t, d10, backoffCap*12/10)
}

func TestShadowTerminalResetsOnSnapshotFrame(t *testing.T) {
	shadow := NewShadowTerminal()
	shadow.ApplyLiveOutput([]byte("first screen"))
	shadow.ApplySnapshot([]byte("resynced"))

	cells := shadow.VisibleCells()
	require.NotEmpty(t, cells)
	assert.Equal(t, 'r', cells[0].Char)
}

func TestShadowAppAppliesLatestViewState(t *testing.T) {
	app := &ShadowApp{}
	app.Apply("task_browser", json.RawMessage(`{"items":[]}`))
	kind, state := app.ViewState()
	assert.Equal(t, "task_browser", kind)
	assert.JSONEq(t, `{"items":[]}`, string(state))
}
