package layout

// Normalize applies the tree-shape invariants bottom-up, to completion,
// after every mutation: a Split/Tabs with one child is
// replaced by that child; an empty Split/Tabs is removed from its parent;
// a parent that becomes empty is likewise removed, recursively. The root
// is collapsed in place but never removed (an empty tree becomes an empty
// Terminal placeholder, since root is an addressable *Node the caller
// already holds a pointer to).
func Normalize(root *Node) {
	normalizeChildren(root)
	if root.IsContainer() && len(root.Children) == 1 {
		*root = *root.Children[0]
		Normalize(root)
		return
	}
	if root.IsContainer() && len(root.Children) == 0 {
		*root = *NewTerminal()
	}
}

// normalizeChildren recursively collapses every Split/Tabs subtree that
// has drifted out of shape, then prunes the resulting holes from this
// node's own Children.
func normalizeChildren(n *Node) {
	if !n.IsContainer() {
		return
	}

	kept := n.Children[:0]
	keptSizes := n.Sizes[:0]
	for i, child := range n.Children {
		normalizeChildren(child)

		if child.IsContainer() {
			switch len(child.Children) {
			case 0:
				continue // drop empty container
			case 1:
				*child = *child.Children[0]
			}
		}

		kept = append(kept, child)
		if n.Kind == KindSplit && i < len(n.Sizes) {
			keptSizes = append(keptSizes, n.Sizes[i])
		}
	}
	n.Children = kept
	if n.Kind == KindSplit {
		n.Sizes = renormalizeSizes(keptSizes)
	}
	if n.Kind == KindTabs && n.ActiveTab >= len(n.Children) {
		if len(n.Children) == 0 {
			n.ActiveTab = 0
		} else {
			n.ActiveTab = len(n.Children) - 1
		}
	}
}

// renormalizeSizes guarantees len(sizes) matches the post-prune child
// count and the sum stays positive, falling back to an equal split if the
// surviving sizes summed to zero.
func renormalizeSizes(sizes []float32) []float32 {
	if len(sizes) == 0 {
		return sizes
	}
	var sum float32
	for _, s := range sizes {
		sum += s
	}
	if sum <= 0 {
		return equalSizes(len(sizes))
	}
	return sizes
}

// Validate reports whether root satisfies every structural invariant:
// every Split/Tabs has at least one child, ActiveTab is in range, Sizes
// length matches children length, and leaves are only Terminal/App. It
// never panics on a malformed tree; it simply returns false.
func Validate(root *Node) bool {
	if root == nil {
		return false
	}
	switch root.Kind {
	case KindTerminal, KindApp:
		return true
	case KindSplit:
		if len(root.Children) == 0 || len(root.Sizes) != len(root.Children) {
			return false
		}
		var sum float32
		for _, s := range root.Sizes {
			sum += s
		}
		if sum <= 0 {
			return false
		}
	case KindTabs:
		if len(root.Children) == 0 || root.ActiveTab < 0 || root.ActiveTab >= len(root.Children) {
			return false
		}
	default:
		return false
	}
	for _, c := range root.Children {
		if !Validate(c) {
			return false
		}
	}
	return true
}
