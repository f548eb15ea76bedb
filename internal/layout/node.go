// Package layout implements the recursive Terminal/Split/Tabs/App tree a
// project's panes are arranged in, addressed exclusively by Path. No
// recursive mutation is expressed structurally: Path is the only cursor,
// mirroring the teacher's own path-indexed helpers for nested state.
package layout

import "encoding/json"

// Kind discriminates a LayoutNode's variant, serialized as the JSON "type"
// field.
type Kind string

const (
	KindTerminal Kind = "terminal"
	KindSplit    Kind = "split"
	KindTabs     Kind = "tabs"
	KindApp      Kind = "app"
)

// Direction is a Split node's axis.
type Direction string

const (
	Horizontal Direction = "horizontal"
	Vertical   Direction = "vertical"
)

// Id is an opaque identifier shared by both Terminal and App leaves. The
// two ID spaces are disjoint by construction: callers mint Terminal IDs
// from ptymgr.Id and App IDs from apprt's registry, both UUIDs.
type Id string

// Node is one element of the recursive layout tree. Exactly one of the
// variant-specific field groups is populated, selected by Kind; this
// mirrors a tagged union using a flat struct plus discriminator, the
// idiomatic Go substitute for the source's sum type, kept a struct rather
// than an interface so the whole tree round-trips through encoding/json
// without custom (Un)MarshalJSON on every node.
type Node struct {
	Kind Kind `json:"type"`

	// Terminal fields.
	TerminalId *Id    `json:"terminal_id,omitempty"`
	Minimized  bool   `json:"minimized,omitempty"`
	Detached   bool   `json:"detached,omitempty"`
	ShellType  string `json:"shell_type,omitempty"`
	Zoom       float64 `json:"zoom,omitempty"`

	// Split fields.
	Direction Direction `json:"direction,omitempty"`
	Sizes     []float32 `json:"sizes,omitempty"`

	// Tabs fields.
	ActiveTab int `json:"active_tab,omitempty"`

	// Split/Tabs shared field.
	Children []*Node `json:"children,omitempty"`

	// App fields.
	AppId     *Id             `json:"app_id,omitempty"`
	AppKind   string          `json:"app_kind,omitempty"`
	AppConfig json.RawMessage `json:"app_config,omitempty"`
}

// NewTerminal creates an uninitialized Terminal leaf (TerminalId is nil
// until a session is attached to it).
func NewTerminal() *Node {
	return &Node{Kind: KindTerminal, Zoom: 1.0}
}

// NewTerminalFor creates a Terminal leaf already bound to id.
func NewTerminalFor(id Id) *Node {
	n := NewTerminal()
	n.TerminalId = &id
	return n
}

// NewApp creates an App leaf bound to id, with kind recorded for the
// renderer/registry lookup.
func NewApp(id Id, kind string) *Node {
	return &Node{Kind: KindApp, AppId: &id, AppKind: kind}
}

// IsLeaf reports whether n is a Terminal or App node.
func (n *Node) IsLeaf() bool {
	return n != nil && (n.Kind == KindTerminal || n.Kind == KindApp)
}

// IsContainer reports whether n is a Split or Tabs node.
func (n *Node) IsContainer() bool {
	return n != nil && (n.Kind == KindSplit || n.Kind == KindTabs)
}

// Clone deep-copies n and its entire subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.TerminalId != nil {
		id := *n.TerminalId
		c.TerminalId = &id
	}
	if n.AppId != nil {
		id := *n.AppId
		c.AppId = &id
	}
	if n.Sizes != nil {
		c.Sizes = append([]float32(nil), n.Sizes...)
	}
	if n.AppConfig != nil {
		c.AppConfig = append(json.RawMessage(nil), n.AppConfig...)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}
