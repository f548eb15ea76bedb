// Package hostsessions wires the PTY manager (internal/ptymgr) and the
// terminal session engine (internal/term) together into the single
// collaborator the rest of the host needs: something that satisfies both
// dispatch.Sessions (so the action dispatcher and WebSocket connections
// can reach a live terminal) and remoteserver.SnapshotSource (so a new or
// resynchronizing subscriber gets a full-screen redraw). This is the
// glue layer the teacher's own internal/app assembles per subsystem,
// adapted here to bind one concrete pair of collaborators instead of a
// whole TUI model.
package hostsessions

import (
	"context"
	"sync"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/dispatch"
	"github.com/andyrewlee/gridmux/internal/gridconfig"
	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/logging"
	"github.com/andyrewlee/gridmux/internal/ptymgr"
	"github.com/andyrewlee/gridmux/internal/remoteserver"
	"github.com/andyrewlee/gridmux/internal/term"
)

// PTYPublisher is the narrow slice of remoteserver.PTYBroadcaster this
// package needs, kept as an interface so tests can fan out live output
// without a real broadcaster.
type PTYPublisher interface {
	Publish(terminalID layout.Id, data []byte)
}

// Host owns one Manager and every live term.Session spawned through it,
// keyed by the same Id used as a layout.Id across the rest of the
// system. It implements dispatch.Sessions and remoteserver.SnapshotSource.
type Host struct {
	group   *asyncutil.Group
	manager *ptymgr.Manager
	config  *gridconfig.Config
	pty     PTYPublisher

	mu       sync.Mutex
	sessions map[layout.Id]*term.Session
}

var (
	_ dispatch.Sessions          = (*Host)(nil)
	_ remoteserver.SnapshotSource = (*Host)(nil)
)

// New creates an empty Host. group ties every spawned session's output
// pump to the caller's lifetime; pty receives every chunk of live PTY
// output for fan-out to remote subscribers (may be nil in a headless
// bench run with no remote server).
func New(group *asyncutil.Group, config *gridconfig.Config, pty PTYPublisher) *Host {
	return &Host{
		group:    group,
		manager:  ptymgr.NewManager(),
		config:   config,
		pty:      pty,
		sessions: make(map[layout.Id]*term.Session),
	}
}

// Create spawns a shell using the config's default profile and returns
// its session handle.
func (h *Host) Create(cols, rows int) (layout.Id, dispatch.TerminalHandle, error) {
	profile := h.config.ShellProfileByName(h.config.DefaultShell)
	id, input, output, err := h.manager.Spawn(profile, "", nil, uint16(cols), uint16(rows))
	if err != nil {
		return "", nil, err
	}

	session := term.NewSession(cols, rows, ptymgr.NewInputWriter(input))
	terminalID := layout.Id(id)

	h.mu.Lock()
	h.sessions[terminalID] = session
	h.mu.Unlock()

	h.group.Go("hostsessions-pump-"+string(terminalID), func(ctx context.Context) {
		h.pump(terminalID, session, output)
	})

	return terminalID, session, nil
}

// Get resolves a live terminal handle by id.
func (h *Host) Get(id layout.Id) (dispatch.TerminalHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Close terminates the PTY and drops the session (SIGTERM then forceful
// kill after a grace period, handled inside ptymgr.Manager.Close).
func (h *Host) Close(id layout.Id) error {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()

	_, err := h.manager.Close(ptymgr.Id(id))
	return err
}

// Snapshot implements remoteserver.SnapshotSource: a full-screen redraw
// payload for terminalID's current grid.
func (h *Host) Snapshot(terminalID string) ([]byte, error) {
	h.mu.Lock()
	s, ok := h.sessions[layout.Id(terminalID)]
	h.mu.Unlock()
	if !ok {
		return nil, dispatch.ErrUnknownAction
	}
	return s.Snapshot(), nil
}

// pump drains output from the PTY's OutputSource queue, feeding each
// chunk into the term.Session (the grid's only writer) and the live PTY
// broadcaster, in arrival order, until the queue closes on PTY exit.
func (h *Host) pump(terminalID layout.Id, session *term.Session, output ptymgr.OutputSource) {
	for {
		chunk, ok := output.Recv()
		if !ok {
			logging.Debug("hostsessions: output pump for %s stopped (pty closed)", terminalID)
			return
		}
		session.PushOutput(chunk.Data)
		if h.pty != nil {
			h.pty.Publish(terminalID, chunk.Data)
		}
	}
}
