package dispatch

import (
	"context"
	"sync"

	"github.com/andyrewlee/gridmux/internal/workspace"
)

// Router holds one Local backend plus a per-project table of Remote
// backends: an action targeting a project is Local iff the project's
// backend is local, Remote otherwise. The mutex-guarded map mirrors
// ptymgr.Manager's session table.
type Router struct {
	mu      sync.RWMutex
	local   Backend
	remotes map[workspace.ProjectID]Backend
}

// NewRouter creates a Router whose default backend for any project not
// explicitly marked remote is local.
func NewRouter(local Backend) *Router {
	return &Router{local: local, remotes: make(map[workspace.ProjectID]Backend)}
}

// SetRemote marks projectID as served by backend instead of the local
// Workspace.
func (r *Router) SetRemote(projectID workspace.ProjectID, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[projectID] = backend
}

// ClearRemote reverts projectID to the local backend.
func (r *Router) ClearRemote(projectID workspace.ProjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remotes, projectID)
}

// Dispatch routes req to whichever backend owns req.ProjectID.
func (r *Router) Dispatch(ctx context.Context, req ActionRequest) ActionResult {
	r.mu.RLock()
	backend, ok := r.remotes[workspace.ProjectID(req.ProjectID)]
	if !ok {
		backend = r.local
	}
	r.mu.RUnlock()

	if backend == nil {
		return Failure("dispatch: no backend configured for project")
	}
	return backend.Dispatch(ctx, req)
}
