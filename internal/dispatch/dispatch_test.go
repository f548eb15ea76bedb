package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/term"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

type fakeHandle struct {
	sent    [][]byte
	cols    int
	rows    int
	cells   []term.VisibleCell
	cursor  term.CursorState
	lastKey term.SpecialKey
}

func (h *fakeHandle) SendInput(data []byte) error {
	h.sent = append(h.sent, append([]byte(nil), data...))
	return nil
}
func (h *fakeHandle) SendSpecialKey(key term.SpecialKey) error { h.lastKey = key; return nil }
func (h *fakeHandle) Resize(cols, rows int)                   { h.cols, h.rows = cols, rows }
func (h *fakeHandle) VisibleCells() []term.VisibleCell        { return h.cells }
func (h *fakeHandle) Cursor() term.CursorState                { return h.cursor }

type fakeSessions struct {
	handles map[layout.Id]*fakeHandle
	next    int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{handles: make(map[layout.Id]*fakeHandle)}
}

func (s *fakeSessions) Get(id layout.Id) (TerminalHandle, bool) {
	h, ok := s.handles[id]
	return h, ok
}

func (s *fakeSessions) Create(cols, rows int) (layout.Id, TerminalHandle, error) {
	s.next++
	id := layout.Id(fmt.Sprintf("term-%d", s.next))
	h := &fakeHandle{cols: cols, rows: rows}
	s.handles[id] = h
	return id, h, nil
}

func (s *fakeSessions) Close(id layout.Id) error {
	delete(s.handles, id)
	return nil
}

type fakeApps struct {
	created map[string]string
	next    int
}

func newFakeApps() *fakeApps { return &fakeApps{created: make(map[string]string)} }

func (a *fakeApps) Create(kindTag string) (string, error) {
	a.next++
	id := fmt.Sprintf("app-%d", a.next)
	a.created[id] = kindTag
	return id, nil
}
func (a *fakeApps) Close(appID string) error { delete(a.created, appID); return nil }
func (a *fakeApps) HandleAction(appID string, action json.RawMessage) ActionResult {
	if _, ok := a.created[appID]; !ok {
		return Failure("unknown app")
	}
	return SuccessValue(map[string]string{"appID": appID})
}

type fakeVCS struct{}

func (fakeVCS) Status(path string) (json.RawMessage, error) {
	return json.RawMessage(`{"clean":true}`), nil
}
func (fakeVCS) DiffSummary(path string) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}
func (fakeVCS) Diff(path, mode string, ignoreWS bool) (json.RawMessage, error) {
	return json.RawMessage(`""`), nil
}

func newTestSetup(t *testing.T) (*LocalBackend, *workspace.Workspace, *fakeSessions, workspace.ProjectID) {
	t.Helper()
	group := asyncutil.NewGroup(context.Background())
	t.Cleanup(group.Close)

	ws := workspace.New(group)
	sessions := newFakeSessions()
	id, handle, err := sessions.Create(80, 24)
	require.NoError(t, err)

	p := &workspace.Project{ID: workspace.NewProjectID(), Name: "demo", Layout: layout.NewTerminalFor(id)}
	require.NoError(t, ws.AddProject(p))

	backend := &LocalBackend{Workspace: ws, Sessions: sessions, Apps: newFakeApps(), VCS: fakeVCS{}}
	_ = handle
	return backend, ws, sessions, p.ID
}

func TestSendTextRoutesToSession(t *testing.T) {
	backend, _, sessions, pid := newTestSetup(t)
	result := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionSendText,
		ProjectID: string(pid),
		Text:      "hello",
	})
	require.True(t, result.OK)
	var found bool
	for _, h := range sessions.handles {
		for _, sent := range h.sent {
			if string(sent) == "hello" {
				found = true
			}
		}
	}
	assert.True(t, found)
}

func TestResizeUpdatesHandle(t *testing.T) {
	backend, _, sessions, pid := newTestSetup(t)
	result := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionResize,
		ProjectID: string(pid),
		Cols:      120,
		Rows:      40,
	})
	require.True(t, result.OK)
	var resized bool
	for _, h := range sessions.handles {
		if h.cols == 120 && h.rows == 40 {
			resized = true
		}
	}
	assert.True(t, resized)
}

func TestSplitTerminalCreatesSiblingSession(t *testing.T) {
	backend, ws, sessions, pid := newTestSetup(t)
	before := len(sessions.handles)

	result := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionSplitTerminal,
		ProjectID: string(pid),
		Path:      layout.Path{},
		Direction: layout.Horizontal,
	})
	require.True(t, result.OK)
	assert.Equal(t, before+1, len(sessions.handles))

	p, ok := ws.Project(pid)
	require.True(t, ok)
	assert.Equal(t, layout.KindSplit, p.Layout.Kind)
}

func TestCloseTerminalClosesSessionAndCollapsesLayout(t *testing.T) {
	backend, ws, sessions, pid := newTestSetup(t)
	splitResult := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionSplitTerminal,
		ProjectID: string(pid),
		Direction: layout.Horizontal,
	})
	require.True(t, splitResult.OK)

	closeResult := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionCloseTerminal,
		ProjectID: string(pid),
		Path:      layout.Path{1},
	})
	require.True(t, closeResult.OK)

	p, ok := ws.Project(pid)
	require.True(t, ok)
	assert.Equal(t, layout.KindTerminal, p.Layout.Kind, "closing one side of a split should collapse it back to a single leaf")
	assert.Equal(t, 1, len(sessions.handles))
}

func TestCreateAppAndAppAction(t *testing.T) {
	backend, ws, _, pid := newTestSetup(t)
	createResult := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionCreateApp,
		ProjectID: string(pid),
		Path:      layout.Path{},
		KindTag:   "task_browser",
	})
	require.True(t, createResult.OK)

	var created struct {
		AppID string `json:"app_id"`
	}
	require.NoError(t, json.Unmarshal(createResult.Data, &created))
	require.NotEmpty(t, created.AppID)

	p, ok := ws.Project(pid)
	require.True(t, ok)
	assert.Equal(t, layout.KindApp, p.Layout.Kind)

	actionResult := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionAppAction,
		ProjectID: string(pid),
		AppID:     created.AppID,
		Action:    json.RawMessage(`{"op":"refresh"}`),
	})
	assert.True(t, actionResult.OK)
}

func TestVCSStatusDelegatesToBackend(t *testing.T) {
	backend, _, _, pid := newTestSetup(t)
	result := backend.Dispatch(context.Background(), ActionRequest{
		Type:      ActionVCSStatus,
		ProjectID: string(pid),
		VCSPath:   "/tmp/repo",
	})
	require.True(t, result.OK)
	assert.JSONEq(t, `{"clean":true}`, string(result.Data))
}

func TestUnknownActionTypeFails(t *testing.T) {
	backend, _, _, pid := newTestSetup(t)
	result := backend.Dispatch(context.Background(), ActionRequest{Type: "bogus", ProjectID: string(pid)})
	assert.False(t, result.OK)
}

func TestRemoteBackendForwardsToHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ActionSendText, req.Type)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Success(json.RawMessage(`"ok"`)))
	}))
	defer srv.Close()

	backend := NewRemoteBackend(nil, srv.URL, "tok")
	result := backend.Dispatch(context.Background(), ActionRequest{Type: ActionSendText, ProjectID: "p1", Text: "hi"})
	require.True(t, result.OK)
}

func TestRouterPicksRemoteBackendPerProject(t *testing.T) {
	local := &LocalBackend{Workspace: workspace.New(asyncutil.NewGroup(context.Background()))}
	router := NewRouter(local)

	var calledRemote bool
	remote := backendFunc(func(ctx context.Context, req ActionRequest) ActionResult {
		calledRemote = true
		return Success(nil)
	})
	router.SetRemote("remote-project", remote)

	_ = router.Dispatch(context.Background(), ActionRequest{Type: ActionReadContent, ProjectID: "local-project"})
	assert.False(t, calledRemote)

	_ = router.Dispatch(context.Background(), ActionRequest{Type: ActionReadContent, ProjectID: "remote-project"})
	assert.True(t, calledRemote)
}

type backendFunc func(ctx context.Context, req ActionRequest) ActionResult

func (f backendFunc) Dispatch(ctx context.Context, req ActionRequest) ActionResult { return f(ctx, req) }
