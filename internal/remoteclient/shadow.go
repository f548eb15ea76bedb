package remoteclient

import (
	"encoding/json"
	"sync"

	"github.com/andyrewlee/gridmux/internal/term"
)

// defaultShadowCols/Rows seed a freshly observed terminal mirror before
// its first resize message arrives; the PTY's actual live size is learned
// from subsequent frames and an explicit resize action, matching how the
// server itself only learns a terminal's size from a resize request.
const (
	defaultShadowCols = 80
	defaultShadowRows = 24
)

// ShadowTerminal is the client-side mirror of one remote terminal
// session's grid, fed exclusively by frame-type-1 (live) and
// frame-type-2 (snapshot) binary WS frames. It has no live PTY of its
// own; SendInput is never called locally — input goes back to the server
// as a binary input frame or a JSON send_text message.
type ShadowTerminal struct {
	mu      sync.Mutex
	session *term.Session
}

// NewShadowTerminal creates an empty mirror at the default grid size.
func NewShadowTerminal() *ShadowTerminal {
	return &ShadowTerminal{session: term.NewSession(defaultShadowCols, defaultShadowRows, nil)}
}

// ApplyLiveOutput feeds live PTY bytes (frame type 1) into the mirrored
// emulator, exactly as the real session's PushOutput does on the server
// side.
func (s *ShadowTerminal) ApplyLiveOutput(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.PushOutput(data)
}

// ApplySnapshot resets the mirrored emulator before applying a
// resynchronization snapshot (frame type 2): when the server sends a
// snapshot frame, the client resets the local terminal emulator to that
// state before applying subsequent live frames.
func (s *ShadowTerminal) ApplySnapshot(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Reset()
	s.session.PushOutput(data)
}

// Resize adjusts the mirrored grid's dimensions, e.g. once the local view
// reports its own size and the caller issues a resize action.
func (s *ShadowTerminal) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Resize(cols, rows)
}

// VisibleCells snapshots the mirrored grid for rendering.
func (s *ShadowTerminal) VisibleCells() []term.VisibleCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.VisibleCells()
}

// Cursor returns the mirrored cursor state.
func (s *ShadowTerminal) Cursor() term.CursorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Cursor()
}

// Title returns the mirrored OSC title.
func (s *ShadowTerminal) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Title()
}

// ShadowApp is the client-side mirror of one app pane's broadcast view
// state, updated whenever an app_state_changed message arrives for its
// app_id.
type ShadowApp struct {
	mu        sync.Mutex
	kind      string
	viewState json.RawMessage
}

// Apply replaces the mirrored view state with a freshly received
// snapshot.
func (a *ShadowApp) Apply(kind string, viewState json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kind = kind
	a.viewState = viewState
}

// ViewState returns the mirrored kind tag and the latest view-state JSON.
func (a *ShadowApp) ViewState() (string, json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.kind, a.viewState
}
