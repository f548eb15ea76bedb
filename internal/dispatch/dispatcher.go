package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/term"
	"github.com/andyrewlee/gridmux/internal/workspace"
)

// ErrUnknownAction is returned for an ActionType a Backend doesn't
// recognize.
var ErrUnknownAction = errors.New("dispatch: unknown action type")

// TerminalHandle is the narrow view of a live terminal session the
// dispatcher needs: input, resize, and a read-only content snapshot. A
// ptymgr+term pairing satisfies this without the dispatcher importing
// either package directly, the same narrow-interface discipline
// term.Session itself uses for InputWriter.
type TerminalHandle interface {
	SendInput(data []byte) error
	SendSpecialKey(key term.SpecialKey) error
	Resize(cols, rows int)
	VisibleCells() []term.VisibleCell
	Cursor() term.CursorState
}

// Sessions resolves and manages the live terminal handles backing layout
// leaves. One Sessions implementation is shared across every project a
// Backend serves.
type Sessions interface {
	Get(id layout.Id) (TerminalHandle, bool)
	Create(cols, rows int) (layout.Id, TerminalHandle, error)
	Close(id layout.Id) error
}

// AppRegistry is the dispatcher's view of the app runtime: creating/closing
// app panes and routing a deserialized action to the handler registered
// for an app_id.
type AppRegistry interface {
	Create(kindTag string) (appID string, err error)
	Close(appID string) error
	HandleAction(appID string, action json.RawMessage) ActionResult
}

// VCS is the thin external interface version-control queries go through;
// implemented outside the core and injected here.
type VCS interface {
	Status(path string) (json.RawMessage, error)
	DiffSummary(path string) (json.RawMessage, error)
	Diff(path, mode string, ignoreWhitespace bool) (json.RawMessage, error)
}

// Backend executes one ActionRequest and returns its result. LocalBackend
// and RemoteBackend are the two implementations.
type Backend interface {
	Dispatch(ctx context.Context, req ActionRequest) ActionResult
}

// LocalBackend executes actions directly against a Workspace and its
// attendant terminal/app/VCS collaborators, on the caller's owning
// goroutine. Workspace itself is internally synchronized, so LocalBackend
// does not add its own lock.
type LocalBackend struct {
	Workspace *workspace.Workspace
	Sessions  Sessions
	Apps      AppRegistry
	VCS       VCS
}

// Dispatch routes req by Type against the configured collaborators.
func (b *LocalBackend) Dispatch(ctx context.Context, req ActionRequest) ActionResult {
	switch req.Type {
	case ActionSendText:
		return b.sendText(req)
	case ActionSendSpecialKey:
		return b.sendSpecialKey(req)
	case ActionResize:
		return b.resize(req)
	case ActionReadContent:
		return b.readContent(req)
	case ActionCreateTerminal:
		return b.createTerminal(req)
	case ActionCloseTerminal:
		return b.closeTerminal(req)
	case ActionSplitTerminal:
		return b.splitTerminal(req)
	case ActionFocusTerminal:
		return b.focusTerminal(req)
	case ActionUpdateSplitSizes:
		return b.updateSplitSizes(req)
	case ActionCreateApp:
		return b.createApp(req)
	case ActionCloseApp:
		return b.closeApp(req)
	case ActionAppAction:
		return b.appAction(req)
	case ActionVCSStatus:
		return b.vcsStatus(req)
	case ActionVCSDiffSummary:
		return b.vcsDiffSummary(req)
	case ActionVCSDiff:
		return b.vcsDiff(req)
	default:
		return Failure(ErrUnknownAction.Error())
	}
}

func (b *LocalBackend) terminalID(req ActionRequest) (layout.Id, error) {
	node, err := b.node(req)
	if err != nil {
		return "", err
	}
	if node.Kind != layout.KindTerminal || node.TerminalId == nil {
		return "", errors.New("dispatch: path does not resolve to a terminal")
	}
	return *node.TerminalId, nil
}

func (b *LocalBackend) node(req ActionRequest) (*layout.Node, error) {
	p, ok := b.Workspace.Project(workspace.ProjectID(req.ProjectID))
	if !ok {
		return nil, workspace.ErrNotFound
	}
	return layout.Get(p.Layout, req.Path)
}

func (b *LocalBackend) handle(req ActionRequest) (TerminalHandle, error) {
	id, err := b.terminalID(req)
	if err != nil {
		return nil, err
	}
	h, ok := b.Sessions.Get(id)
	if !ok {
		return nil, errors.New("dispatch: terminal session not live")
	}
	return h, nil
}

func (b *LocalBackend) sendText(req ActionRequest) ActionResult {
	h, err := b.handle(req)
	if err != nil {
		return FailureErr(err)
	}
	return FailureErr(h.SendInput([]byte(req.Text)))
}

func (b *LocalBackend) sendSpecialKey(req ActionRequest) ActionResult {
	h, err := b.handle(req)
	if err != nil {
		return FailureErr(err)
	}
	return FailureErr(h.SendSpecialKey(req.Key))
}

func (b *LocalBackend) resize(req ActionRequest) ActionResult {
	h, err := b.handle(req)
	if err != nil {
		return FailureErr(err)
	}
	h.Resize(req.Cols, req.Rows)
	return Success(nil)
}

type contentResponse struct {
	Cells  []term.VisibleCell `json:"cells"`
	Cursor term.CursorState   `json:"cursor"`
}

func (b *LocalBackend) readContent(req ActionRequest) ActionResult {
	h, err := b.handle(req)
	if err != nil {
		return FailureErr(err)
	}
	return SuccessValue(contentResponse{Cells: h.VisibleCells(), Cursor: h.Cursor()})
}

type terminalCreatedResponse struct {
	TerminalID layout.Id `json:"terminal_id"`
}

func (b *LocalBackend) createTerminal(req ActionRequest) ActionResult {
	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	id, _, err := b.Sessions.Create(cols, rows)
	if err != nil {
		return FailureErr(err)
	}
	err = b.Workspace.WithLayoutNode(workspace.ProjectID(req.ProjectID), req.Path, func(n *layout.Node) {
		*n = *layout.NewTerminalFor(id)
	})
	if err != nil {
		_ = b.Sessions.Close(id)
		return FailureErr(err)
	}
	return SuccessValue(terminalCreatedResponse{TerminalID: id})
}

func (b *LocalBackend) closeTerminal(req ActionRequest) ActionResult {
	id, err := b.terminalID(req)
	if err != nil {
		return FailureErr(err)
	}
	if err := b.Sessions.Close(id); err != nil {
		return FailureErr(err)
	}
	return FailureErr(b.Workspace.WithLayoutNode(workspace.ProjectID(req.ProjectID), nil, func(root *layout.Node) {
		_, _ = layout.Close(root, req.Path)
	}))
}

// splitTerminal replaces the leaf at req.Path with a Split containing the
// original leaf and a freshly spawned terminal. layout.Split always mints
// its new leaf as an unattached Terminal node at sibling index 1; this
// spawns the session after the split succeeds and binds its ID onto that
// leaf, all inside one WithLayoutNode so the split and the bind land in a
// single state_version bump.
func (b *LocalBackend) splitTerminal(req ActionRequest) ActionResult {
	var created layout.Id
	var innerErr error
	err := b.Workspace.WithLayoutNode(workspace.ProjectID(req.ProjectID), nil, func(root *layout.Node) {
		if _, splitErr := layout.Split(root, req.Path, req.Direction); splitErr != nil {
			innerErr = splitErr
			return
		}
		freshPath := append(req.Path.Clone(), 1)
		fresh, getErr := layout.Get(root, freshPath)
		if getErr != nil {
			innerErr = getErr
			return
		}
		id, _, spawnErr := b.Sessions.Create(80, 24)
		if spawnErr != nil {
			innerErr = spawnErr
			return
		}
		created = id
		fresh.TerminalId = &id
	})
	if err != nil {
		return FailureErr(err)
	}
	if innerErr != nil {
		return FailureErr(innerErr)
	}
	return SuccessValue(terminalCreatedResponse{TerminalID: created})
}

func (b *LocalBackend) focusTerminal(req ActionRequest) ActionResult {
	id, err := b.terminalID(req)
	if err != nil {
		return FailureErr(err)
	}
	b.Workspace.PushFocus(workspace.FocusEntry{ProjectID: workspace.ProjectID(req.ProjectID), Path: req.Path})
	return SuccessValue(terminalCreatedResponse{TerminalID: id})
}

func (b *LocalBackend) updateSplitSizes(req ActionRequest) ActionResult {
	err := b.Workspace.WithLayoutNode(workspace.ProjectID(req.ProjectID), nil, func(root *layout.Node) {
		_ = layout.UpdateSplitSizes(root, req.Path, req.Sizes)
	})
	return FailureErr(err)
}

func (b *LocalBackend) createApp(req ActionRequest) ActionResult {
	if b.Apps == nil {
		return Failure("dispatch: app runtime not configured")
	}
	appID, err := b.Apps.Create(req.KindTag)
	if err != nil {
		return FailureErr(err)
	}
	err = b.Workspace.WithLayoutNode(workspace.ProjectID(req.ProjectID), req.Path, func(n *layout.Node) {
		*n = *layout.NewApp(layout.Id(appID), req.KindTag)
	})
	if err != nil {
		_ = b.Apps.Close(appID)
		return FailureErr(err)
	}
	return SuccessValue(struct {
		AppID string `json:"app_id"`
	}{AppID: appID})
}

func (b *LocalBackend) closeApp(req ActionRequest) ActionResult {
	if b.Apps == nil {
		return Failure("dispatch: app runtime not configured")
	}
	return FailureErr(b.Apps.Close(req.AppID))
}

func (b *LocalBackend) appAction(req ActionRequest) ActionResult {
	if b.Apps == nil {
		return Failure("dispatch: app runtime not configured")
	}
	return b.Apps.HandleAction(req.AppID, req.Action)
}

func (b *LocalBackend) vcsStatus(req ActionRequest) ActionResult {
	if b.VCS == nil {
		return Failure("dispatch: vcs backend not configured")
	}
	data, err := b.VCS.Status(req.VCSPath)
	if err != nil {
		return FailureErr(err)
	}
	return Success(data)
}

func (b *LocalBackend) vcsDiffSummary(req ActionRequest) ActionResult {
	if b.VCS == nil {
		return Failure("dispatch: vcs backend not configured")
	}
	data, err := b.VCS.DiffSummary(req.VCSPath)
	if err != nil {
		return FailureErr(err)
	}
	return Success(data)
}

func (b *LocalBackend) vcsDiff(req ActionRequest) ActionResult {
	if b.VCS == nil {
		return Failure("dispatch: vcs backend not configured")
	}
	data, err := b.VCS.Diff(req.VCSPath, req.DiffMode, req.IgnoreWhitespace)
	if err != nil {
		return FailureErr(err)
	}
	return Success(data)
}
