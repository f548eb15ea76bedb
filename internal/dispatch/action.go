// Package dispatch implements the action dispatcher: a single externally
// invokable action enum, routed to either the local Workspace or a remote
// instance over HTTP, per project.
package dispatch

import (
	"encoding/json"

	"github.com/andyrewlee/gridmux/internal/layout"
	"github.com/andyrewlee/gridmux/internal/term"
)

// ActionType discriminates an ActionRequest. Values match the wire tags
// the remote server and client agree on.
type ActionType string

const (
	ActionSendText         ActionType = "send_text"
	ActionSendSpecialKey   ActionType = "send_special_key"
	ActionResize           ActionType = "resize"
	ActionReadContent      ActionType = "read_content"
	ActionCreateTerminal   ActionType = "create_terminal"
	ActionCloseTerminal    ActionType = "close_terminal"
	ActionSplitTerminal    ActionType = "split_terminal"
	ActionFocusTerminal    ActionType = "focus_terminal"
	ActionUpdateSplitSizes ActionType = "update_split_sizes"
	ActionCreateApp        ActionType = "create_app"
	ActionCloseApp         ActionType = "close_app"
	ActionAppAction        ActionType = "app_action"
	ActionVCSStatus        ActionType = "vcs_status"
	ActionVCSDiffSummary   ActionType = "vcs_diff_summary"
	ActionVCSDiff          ActionType = "vcs_diff"
)

// ActionRequest is the single tagged-union request shape every externally
// invokable operation flows through. Fields are grouped by the action
// family that reads them; a handler only reads the fields relevant to its
// own Type, the same flat-struct approach internal/layout.Node uses for
// its own tagged union. The discriminator is tagged "action" on the wire
// (POST /v1/actions sends e.g. {"action":"split_terminal",...}); the
// app_action family's nested payload is tagged "app_action" to keep it
// distinct from the discriminator.
type ActionRequest struct {
	Type      ActionType     `json:"action"`
	ProjectID string         `json:"project_id"`
	Path      layout.Path    `json:"path,omitempty"`

	// send_text / send_special_key / resize
	Text string          `json:"text,omitempty"`
	Key  term.SpecialKey `json:"key,omitempty"`
	Cols int             `json:"cols,omitempty"`
	Rows int             `json:"rows,omitempty"`

	// split_terminal
	Direction layout.Direction `json:"direction,omitempty"`

	// update_split_sizes
	Sizes []float32 `json:"sizes,omitempty"`

	// create_app / close_app / app_action
	AppID   string          `json:"app_id,omitempty"`
	KindTag string          `json:"kind_tag,omitempty"`
	Action  json.RawMessage `json:"app_action,omitempty"`

	// vcs_*
	VCSPath          string `json:"vcs_path,omitempty"`
	DiffMode         string `json:"diff_mode,omitempty"`
	IgnoreWhitespace bool   `json:"ignore_whitespace,omitempty"`
}

// ActionResult is Success(optional JSON) | Error(message). The two cases
// are represented as one struct rather than an
// interface so it marshals directly to the wire shape the remote client
// expects.
type ActionResult struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Success builds a successful result carrying data, which may be nil.
func Success(data json.RawMessage) ActionResult {
	return ActionResult{OK: true, Data: data}
}

// SuccessValue marshals v and wraps it in a successful result. A marshal
// failure degrades to Failure so callers never need a second error path.
func SuccessValue(v any) ActionResult {
	if v == nil {
		return Success(nil)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Failure(err.Error())
	}
	return Success(data)
}

// Failure builds an error result.
func Failure(message string) ActionResult {
	return ActionResult{OK: false, Error: message}
}

// FailureErr is Failure(err.Error()), or a successful empty result if err
// is nil — convenient at the tail of a handler that only returns an error.
func FailureErr(err error) ActionResult {
	if err == nil {
		return Success(nil)
	}
	return Failure(err.Error())
}
