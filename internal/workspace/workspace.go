package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/andyrewlee/gridmux/internal/asyncutil"
	"github.com/andyrewlee/gridmux/internal/layout"
)

// focusStackBound caps the focus stack's depth. Eviction on overflow is a
// simple FIFO cap (drop the oldest entry) — the simplest policy that
// satisfies "bounded" without an exactness requirement on the eviction
// order.
const focusStackBound = 32

var (
	// ErrNotFound is returned for an unknown project/folder ID.
	ErrNotFound = errors.New("workspace: not found")
	// ErrInvalidState is returned when a mutation would violate a
	// structural invariant (e.g. moving a project already in a folder's
	// member list into project_order directly).
	ErrInvalidState = errors.New("workspace: invalid state")
)

// Workspace is the singleton aggregate: every project/folder, the flat
// top-level ordering, the focused project, the bounded focus stack, and
// the two request-broker queues. All mutation goes through its methods,
// which are safe for concurrent use — the conceptual single-UI-thread
// model becomes a mutex here so the type is usable from any goroutine,
// with the "single writer" discipline enforced by serializing through
// this lock rather than by thread affinity.
type Workspace struct {
	mu sync.RWMutex

	projects map[ProjectID]*Project
	folders  map[FolderID]*Folder
	order    []string // project or folder IDs, top-level display order

	focusedProjectID *ProjectID
	focusStack       []FocusEntry

	fullscreen *FocusEntry
	detached   map[layout.Id]struct{}

	broker *broker

	notifier *notifier
}

// New creates an empty Workspace. group ties the notifier's dedicated
// dispatch goroutine to the caller's lifetime (closing group stops it).
func New(group *asyncutil.Group) *Workspace {
	return &Workspace{
		projects: make(map[ProjectID]*Project),
		folders:  make(map[FolderID]*Folder),
		detached: make(map[layout.Id]struct{}),
		broker:   newBroker(),
		notifier: newNotifier(group),
	}
}

// StateVersion returns the current monotonic state_version.
func (w *Workspace) StateVersion() uint64 {
	return w.notifier.Version()
}

// Subscribe registers an observer invoked once per coalesced batch of
// mutations. The returned function unsubscribes.
func (w *Workspace) Subscribe(fn func(version uint64)) func() {
	return w.notifier.Subscribe(fn)
}

func (w *Workspace) bump() uint64 {
	return w.notifier.Bump()
}

// --- Project operations ---------------------------------------------------

// AddProject inserts project at the end of project_order and bumps
// state_version. The project must not already exist.
func (w *Workspace) AddProject(p *Project) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.projects[p.ID]; exists {
		return fmt.Errorf("%w: project %s already exists", ErrInvalidState, p.ID)
	}
	if p.Layout == nil {
		p.Layout = layout.NewTerminal()
	}
	if p.TerminalNames == nil {
		p.TerminalNames = make(map[layout.Id]string)
	}
	w.projects[p.ID] = p
	w.order = append(w.order, string(p.ID))
	w.bump()
	return nil
}

// RemoveProject deletes a project from the workspace: it is removed from
// project_order (or its containing folder's members), any focus-stack
// entries referencing it are dropped, and it is cleared as the focused
// project if it was. Destruction is explicit only; nothing else removes
// a project implicitly.
func (w *Workspace) RemoveProject(id ProjectID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.projects[id]; !ok {
		return ErrNotFound
	}
	delete(w.projects, id)
	w.order = removeString(w.order, string(id))
	for _, f := range w.folders {
		f.Members = removeProjectID(f.Members, id)
	}

	kept := w.focusStack[:0]
	for _, e := range w.focusStack {
		if e.ProjectID != id {
			kept = append(kept, e)
		}
	}
	w.focusStack = kept

	if w.focusedProjectID != nil && *w.focusedProjectID == id {
		w.focusedProjectID = nil
	}
	w.bump()
	return nil
}

// RenameProject sets a project's display name.
func (w *Workspace) RenameProject(id ProjectID, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.Name = name
	w.bump()
	return nil
}

// ReorderProject moves a top-level project_order entry to newIndex.
func (w *Workspace) ReorderProject(id ProjectID, newIndex int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := indexOfString(w.order, string(id))
	if idx < 0 {
		return ErrNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(w.order) {
		newIndex = len(w.order) - 1
	}
	entry := w.order[idx]
	w.order = append(w.order[:idx], w.order[idx+1:]...)
	out := make([]string, 0, len(w.order)+1)
	out = append(out, w.order[:newIndex]...)
	out = append(out, entry)
	out = append(out, w.order[newIndex:]...)
	w.order = out
	w.bump()
	return nil
}

// SetFocusedProject sets the workspace-wide focused project. id may be
// nil-equivalent (empty) to clear focus.
func (w *Workspace) SetFocusedProject(id ProjectID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id != "" {
		if _, ok := w.projects[id]; !ok {
			return ErrNotFound
		}
	}
	if id == "" {
		w.focusedProjectID = nil
	} else {
		w.focusedProjectID = &id
	}
	w.bump()
	return nil
}

// FocusedProject returns the currently focused project ID, if any.
func (w *Workspace) FocusedProject() (ProjectID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.focusedProjectID == nil {
		return "", false
	}
	return *w.focusedProjectID, true
}

// Project returns a snapshot copy of a project by ID.
func (w *Workspace) Project(id ProjectID) (*Project, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.projects[id]
	if !ok {
		return nil, false
	}
	return cloneProject(p), true
}

// Projects returns a snapshot of every project, unordered.
func (w *Workspace) Projects() []*Project {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Project, 0, len(w.projects))
	for _, p := range w.projects {
		out = append(out, cloneProject(p))
	}
	return out
}

// --- Folder operations -----------------------------------------------------

// CreateFolder inserts an empty folder into project_order.
func (w *Workspace) CreateFolder(f *Folder) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.folders[f.ID]; exists {
		return fmt.Errorf("%w: folder %s already exists", ErrInvalidState, f.ID)
	}
	w.folders[f.ID] = f
	w.order = append(w.order, string(f.ID))
	w.bump()
	return nil
}

// DeleteFolder removes a folder; its members return to top-level display
// at the folder's former position in project_order.
func (w *Workspace) DeleteFolder(id FolderID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.folders[id]
	if !ok {
		return ErrNotFound
	}
	idx := indexOfString(w.order, string(id))
	delete(w.folders, id)
	if idx < 0 {
		w.bump()
		return nil
	}
	members := make([]string, len(f.Members))
	for i, m := range f.Members {
		members[i] = string(m)
	}
	out := make([]string, 0, len(w.order)-1+len(members))
	out = append(out, w.order[:idx]...)
	out = append(out, members...)
	out = append(out, w.order[idx+1:]...)
	w.order = out
	w.bump()
	return nil
}

// SetFolderColor sets a folder's color tag.
func (w *Workspace) SetFolderColor(id FolderID, color string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.folders[id]
	if !ok {
		return ErrNotFound
	}
	f.Color = color
	w.bump()
	return nil
}

// MoveIntoFolder moves a top-level project into folder's member list,
// removing it from project_order (a project appears in at most one
// folder).
func (w *Workspace) MoveIntoFolder(projectID ProjectID, folderID FolderID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.projects[projectID]; !ok {
		return ErrNotFound
	}
	f, ok := w.folders[folderID]
	if !ok {
		return ErrNotFound
	}
	w.order = removeString(w.order, string(projectID))
	for _, other := range w.folders {
		other.Members = removeProjectID(other.Members, projectID)
	}
	f.Members = append(f.Members, projectID)
	w.bump()
	return nil
}

// MoveOutOfFolder removes a project from whichever folder holds it and
// appends it back to project_order.
func (w *Workspace) MoveOutOfFolder(projectID ProjectID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.projects[projectID]; !ok {
		return ErrNotFound
	}
	found := false
	for _, f := range w.folders {
		if indexOfProjectID(f.Members, projectID) >= 0 {
			f.Members = removeProjectID(f.Members, projectID)
			found = true
		}
	}
	if !found {
		return ErrInvalidState
	}
	w.order = append(w.order, string(projectID))
	w.bump()
	return nil
}

// --- Layout mutation --------------------------------------------------------

// WithLayoutNode runs f against the layout tree node at path within
// project's layout, guarded by project existence. Normalization runs
// after f returns, and a single state_version bump/notification follows.
func (w *Workspace) WithLayoutNode(projectID ProjectID, path layout.Path, f func(n *layout.Node)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	if p.Layout == nil {
		p.Layout = layout.NewTerminal()
	}
	node, err := layout.Get(p.Layout, path)
	if err != nil {
		return err
	}
	f(node)
	layout.Normalize(p.Layout)
	w.bump()
	return nil
}

// --- Focus stack ------------------------------------------------------------

// PushFocus pushes a new focus frame, evicting the oldest entry (FIFO) if
// the stack is already at its bound.
func (w *Workspace) PushFocus(entry FocusEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focusStack = append(w.focusStack, entry)
	if len(w.focusStack) > focusStackBound {
		w.focusStack = w.focusStack[len(w.focusStack)-focusStackBound:]
	}
	w.bump()
}

// PopFocusToValid pops focus-stack entries until the top resolves to an
// existing leaf (its project exists and its path resolves in that
// project's current layout), returning that entry. It returns ok=false if
// the stack is exhausted without finding a valid entry.
func (w *Workspace) PopFocusToValid() (FocusEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.focusStack) > 0 {
		top := w.focusStack[len(w.focusStack)-1]
		w.focusStack = w.focusStack[:len(w.focusStack)-1]

		p, ok := w.projects[top.ProjectID]
		if !ok || p.Layout == nil {
			continue
		}
		if _, err := layout.Get(p.Layout, top.Path); err != nil {
			continue
		}
		w.bump()
		return top, true
	}
	w.bump()
	return FocusEntry{}, false
}

// --- Request broker ----------------------------------------------------------

// PostOverlayRequest enqueues req on the overlay queue, coalescing
// same-tag repeats.
func (w *Workspace) PostOverlayRequest(req Request) {
	w.mu.Lock()
	w.broker.overlay.push(req)
	w.mu.Unlock()
	w.bump()
}

// PostSidebarRequest enqueues req on the sidebar queue, coalescing
// same-tag repeats.
func (w *Workspace) PostSidebarRequest(req Request) {
	w.mu.Lock()
	w.broker.sidebar.push(req)
	w.mu.Unlock()
	w.bump()
}

// DrainOverlayRequests returns and clears every queued overlay request.
func (w *Workspace) DrainOverlayRequests() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broker.overlay.drain()
}

// DrainSidebarRequests returns and clears every queued sidebar request.
func (w *Workspace) DrainSidebarRequests() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broker.sidebar.drain()
}

// --- Fullscreen / detached windows -------------------------------------------

// SetFullscreen sets or clears (entry == nil) the fullscreen-terminal
// pointer.
func (w *Workspace) SetFullscreen(entry *FocusEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fullscreen = entry
	w.bump()
}

// Fullscreen returns the current fullscreen pointer, if any.
func (w *Workspace) Fullscreen() (FocusEntry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.fullscreen == nil {
		return FocusEntry{}, false
	}
	return *w.fullscreen, true
}

// MarkDetached/MarkAttached track which terminals have been torn off into
// their own OS window.
func (w *Workspace) MarkDetached(id layout.Id) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detached[id] = struct{}{}
	w.bump()
}

func (w *Workspace) MarkAttached(id layout.Id) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.detached, id)
	w.bump()
}

// --- Serialization -----------------------------------------------------------

// document is the plain-data shape persisted to workspace.json: projects,
// folders, project_order, focused_project_id, fullscreen,
// settings_overrides.
type document struct {
	Projects          map[ProjectID]*Project `json:"projects"`
	Folders           map[FolderID]*Folder   `json:"folders"`
	ProjectOrder      []string               `json:"project_order"`
	FocusedProjectID  *ProjectID             `json:"focused_project_id,omitempty"`
	Fullscreen        *FocusEntry            `json:"fullscreen,omitempty"`
	SettingsOverrides json.RawMessage        `json:"settings_overrides,omitempty"`
}

// MarshalJSON snapshots the workspace under its read lock.
func (w *Workspace) MarshalJSON() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc := document{
		Projects:         w.projects,
		Folders:          w.folders,
		ProjectOrder:     w.order,
		FocusedProjectID: w.focusedProjectID,
		Fullscreen:       w.fullscreen,
	}
	return json.Marshal(doc)
}

// UnmarshalJSON replaces the workspace's contents from a previously
// persisted document. Fields this version does not recognize are dropped
// and are not written back on re-save; only each project's
// settings_override is kept verbatim as raw JSON.
func (w *Workspace) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if doc.Projects == nil {
		doc.Projects = make(map[ProjectID]*Project)
	}
	if doc.Folders == nil {
		doc.Folders = make(map[FolderID]*Folder)
	}
	w.projects = doc.Projects
	w.folders = doc.Folders
	w.order = doc.ProjectOrder
	w.focusedProjectID = doc.FocusedProjectID
	w.fullscreen = doc.Fullscreen
	if w.detached == nil {
		w.detached = make(map[layout.Id]struct{})
	}
	return nil
}

// Validate checks the workspace-level invariants: every project_order ID
// resolves to a project not in any folder, or a folder;
// every folder member is a project not also in project_order; the focused
// project (if set) exists.
func (w *Workspace) Validate() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	inFolder := make(map[ProjectID]FolderID)
	for fid, f := range w.folders {
		for _, m := range f.Members {
			if other, dup := inFolder[m]; dup {
				return fmt.Errorf("%w: project %s in folders %s and %s", ErrInvalidState, m, other, fid)
			}
			inFolder[m] = fid
			if indexOfString(w.order, string(m)) >= 0 {
				return fmt.Errorf("%w: folder member %s also in project_order", ErrInvalidState, m)
			}
		}
	}
	for _, entry := range w.order {
		if _, ok := w.projects[ProjectID(entry)]; ok {
			continue
		}
		if _, ok := w.folders[FolderID(entry)]; ok {
			continue
		}
		return fmt.Errorf("%w: project_order entry %s resolves to neither", ErrInvalidState, entry)
	}
	if w.focusedProjectID != nil {
		if _, ok := w.projects[*w.focusedProjectID]; !ok {
			return fmt.Errorf("%w: focused_project_id %s does not exist", ErrInvalidState, *w.focusedProjectID)
		}
	}
	return nil
}

func cloneProject(p *Project) *Project {
	c := *p
	if p.Layout != nil {
		c.Layout = p.Layout.Clone()
	}
	if p.TerminalNames != nil {
		c.TerminalNames = make(map[layout.Id]string, len(p.TerminalNames))
		for k, v := range p.TerminalNames {
			c.TerminalNames[k] = v
		}
	}
	return &c
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func indexOfString(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func removeProjectID(s []ProjectID, v ProjectID) []ProjectID {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func indexOfProjectID(s []ProjectID, v ProjectID) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
