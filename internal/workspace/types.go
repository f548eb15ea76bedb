// Package workspace implements the project/folder/layout model and the
// observable, single-writer Workspace: a projects map, folders map,
// project_order, focus stack, and the request broker that feeds
// overlay/sidebar UI surfaces. IDs reference entities instead of
// pointers, and a state_version counter is bumped on every mutation
// rather than relying on a framework-specific entity/context graph.
package workspace

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/andyrewlee/gridmux/internal/layout"
)

// ProjectID uniquely identifies a Project.
type ProjectID string

// FolderID uniquely identifies a Folder.
type FolderID string

// NewProjectID mints a fresh random ProjectID.
func NewProjectID() ProjectID { return ProjectID(uuid.NewString()) }

// NewFolderID mints a fresh random FolderID.
func NewFolderID() FolderID { return FolderID(uuid.NewString()) }

// VCSStatus is the cached snapshot of a project's VCS state, populated by
// the external VCS collaborator and stored alongside the project rather
// than recomputed inline.
type VCSStatus struct {
	Backend       string    `json:"backend"`
	Branch        string    `json:"branch"`
	Dirty         bool      `json:"dirty"`
	AheadBehind   [2]int    `json:"ahead_behind"`
	LastRefreshed time.Time `json:"last_refreshed"`
}

// Project is one workspace entry: a checkout plus its layout tree and
// per-project overrides.
type Project struct {
	ID               ProjectID                `json:"id"`
	Name             string                   `json:"name"`
	Path             string                   `json:"path"`
	ParentWorktreeOf *ProjectID               `json:"parent_worktree_of,omitempty"`
	SettingsOverride json.RawMessage          `json:"settings_override,omitempty"`
	Layout           *layout.Node             `json:"layout,omitempty"`
	VCS              *VCSStatus               `json:"vcs,omitempty"`
	TerminalNames    map[layout.Id]string     `json:"terminal_names,omitempty"`
}

// Folder groups projects for top-level display. A project appears in at
// most one folder.
type Folder struct {
	ID      FolderID    `json:"id"`
	Name    string      `json:"name"`
	Color   string      `json:"color,omitempty"`
	Members []ProjectID `json:"members"`
}

// FocusEntry is one frame of the focus stack: a project, a path into its
// layout tree, and whichever leaf ID that path resolved to at push time.
type FocusEntry struct {
	ProjectID  ProjectID  `json:"project_id"`
	Path       layout.Path `json:"path"`
	TerminalID *layout.Id `json:"terminal_id,omitempty"`
	AppID      *layout.Id `json:"app_id,omitempty"`
}
