package layout

import "errors"

// Path indexes into a Node tree: an empty Path addresses the root, and each
// element selects a child index at a Split or Tabs node. Path is the only
// legal mutation cursor; every operation here is bounds-checked and never
// panics on an invalid Path.
type Path []int

// ErrNotFound is returned by path lookups that don't resolve to a node.
var ErrNotFound = errors.New("layout: path does not resolve")

// Clone returns a copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Parent returns p without its last element, and the last element itself.
// ok is false for an empty (root) path.
func (p Path) Parent() (Path, int, bool) {
	if len(p) == 0 {
		return nil, 0, false
	}
	return p[:len(p)-1], p[len(p)-1], true
}

// Get returns the node addressed by path within root.
func Get(root *Node, path Path) (*Node, error) {
	n := root
	for _, idx := range path {
		if n == nil || !n.IsContainer() {
			return nil, ErrNotFound
		}
		if idx < 0 || idx >= len(n.Children) {
			return nil, ErrNotFound
		}
		n = n.Children[idx]
	}
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

// GetParent returns the container holding the node at path, along with the
// child index within it. An empty path (the root) has no parent.
func GetParent(root *Node, path Path) (*Node, int, error) {
	parentPath, idx, ok := path.Parent()
	if !ok {
		return nil, 0, ErrNotFound
	}
	parent, err := Get(root, parentPath)
	if err != nil {
		return nil, 0, err
	}
	if !parent.IsContainer() || idx < 0 || idx >= len(parent.Children) {
		return nil, 0, ErrNotFound
	}
	return parent, idx, nil
}

// Replace substitutes the node at path with replacement, returning the new
// root (root itself is mutated in place; the returned value is root,
// for call-site symmetry with the other path helpers).
func Replace(root *Node, path Path, replacement *Node) (*Node, error) {
	if len(path) == 0 {
		*root = *replacement
		return root, nil
	}
	parent, idx, err := GetParent(root, path)
	if err != nil {
		return nil, err
	}
	parent.Children[idx] = replacement
	return root, nil
}

// RemoveAt removes the node at path from its parent's children. Removing
// the root itself is invalid (a tree always has a root) and returns
// ErrNotFound.
func RemoveAt(root *Node, path Path) (*Node, error) {
	parent, idx, err := GetParent(root, path)
	if err != nil {
		return nil, err
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	if parent.ActiveTab >= len(parent.Children) && len(parent.Children) > 0 {
		parent.ActiveTab = len(parent.Children) - 1
	}
	if len(parent.Sizes) > idx {
		parent.Sizes = append(parent.Sizes[:idx], parent.Sizes[idx+1:]...)
	}
	return root, nil
}

// InsertAt inserts node as a child of the container at parentPath, at
// position idx (clamped to [0, len(children)]).
func InsertAt(root *Node, parentPath Path, idx int, node *Node) error {
	parent, err := Get(root, parentPath)
	if err != nil {
		return err
	}
	if !parent.IsContainer() {
		return ErrNotFound
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(parent.Children) {
		idx = len(parent.Children)
	}
	children := make([]*Node, 0, len(parent.Children)+1)
	children = append(children, parent.Children[:idx]...)
	children = append(children, node)
	children = append(children, parent.Children[idx:]...)
	parent.Children = children
	if parent.Kind == KindSplit {
		parent.Sizes = rebalanceSizes(len(parent.Sizes), idx)
	}
	return nil
}

// rebalanceSizes returns prevLen+1 equal shares for a Split that just
// gained a child; the previous sizes are discarded, and idx does not affect
// the result.
func rebalanceSizes(prevLen, idx int) []float32 {
	n := prevLen + 1
	sizes := make([]float32, n)
	share := float32(1.0) / float32(n)
	for i := range sizes {
		sizes[i] = share
	}
	_ = idx
	return sizes
}

// CollectLeaves walks root pre-order and returns every Terminal/App leaf
// with its Path, used for focus cycling and ID enumeration.
func CollectLeaves(root *Node) []LeafRef {
	var out []LeafRef
	var walk func(n *Node, path Path)
	walk = func(n *Node, path Path) {
		if n == nil {
			return
		}
		if n.IsLeaf() {
			out = append(out, LeafRef{Path: path.Clone(), Kind: n.Kind, Node: n})
			return
		}
		for i, child := range n.Children {
			walk(child, append(path.Clone(), i))
		}
	}
	walk(root, nil)
	return out
}

// LeafRef pairs a leaf node with the path it was found at.
type LeafRef struct {
	Path Path
	Kind Kind
	Node *Node
}

// FindByID searches root for a Terminal or App leaf carrying id, returning
// its Path. The two ID spaces are disjoint, so a single search covers both.
func FindByID(root *Node, id Id) (Path, bool) {
	for _, leaf := range CollectLeaves(root) {
		switch leaf.Kind {
		case KindTerminal:
			if leaf.Node.TerminalId != nil && *leaf.Node.TerminalId == id {
				return leaf.Path, true
			}
		case KindApp:
			if leaf.Node.AppId != nil && *leaf.Node.AppId == id {
				return leaf.Path, true
			}
		}
	}
	return nil, false
}
