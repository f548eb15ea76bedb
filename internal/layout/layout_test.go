package layout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAndCloseRestoresLayout(t *testing.T) {
	t1 := Id("t1")
	root := NewTerminalFor(t1)

	originalPath, err := Split(root, nil, Horizontal)
	require.NoError(t, err)
	assert.Equal(t, Path{0}, originalPath)
	require.Equal(t, KindSplit, root.Kind)
	require.Len(t, root.Children, 2)
	assert.Equal(t, []float32{0.5, 0.5}, root.Sizes)
	assert.Equal(t, t1, *root.Children[0].TerminalId)
	assert.Nil(t, root.Children[1].TerminalId)

	second := Id("t2")
	root.Children[1].TerminalId = &second

	_, err = Close(root, Path{1})
	require.NoError(t, err)
	assert.Equal(t, KindTerminal, root.Kind)
	assert.Equal(t, t1, *root.TerminalId)
}

func TestCloseRootYieldsEmptyTerminal(t *testing.T) {
	root := NewTerminalFor("t1")
	removed, err := Close(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []Id{"t1"}, removed)
	assert.Equal(t, KindTerminal, root.Kind)
	assert.Nil(t, root.TerminalId)
}

func TestNormalizeCollapsesSingleChildSplit(t *testing.T) {
	root := &Node{
		Kind:      KindSplit,
		Direction: Horizontal,
		Sizes:     []float32{1.0},
		Children:  []*Node{NewTerminalFor("a")},
	}
	Normalize(root)
	assert.Equal(t, KindTerminal, root.Kind)
	assert.Equal(t, Id("a"), *root.TerminalId)
}

func TestNormalizePrunesEmptyContainerRecursively(t *testing.T) {
	root := &Node{
		Kind:      KindSplit,
		Direction: Horizontal,
		Sizes:     []float32{0.5, 0.5},
		Children: []*Node{
			NewTerminalFor("a"),
			{Kind: KindTabs, Children: nil},
		},
	}
	Normalize(root)
	assert.Equal(t, KindTerminal, root.Kind)
	assert.Equal(t, Id("a"), *root.TerminalId)
}

func TestUpdateSplitSizesIdempotent(t *testing.T) {
	root := &Node{
		Kind:     KindSplit,
		Sizes:    []float32{0.5, 0.5},
		Children: []*Node{NewTerminal(), NewTerminal()},
	}
	require.NoError(t, UpdateSplitSizes(root, nil, []float32{0.3, 0.7}))
	first, _ := json.Marshal(root)
	require.NoError(t, UpdateSplitSizes(root, nil, []float32{0.3, 0.7}))
	second, _ := json.Marshal(root)
	assert.JSONEq(t, string(first), string(second))
}

func TestUpdateSplitSizesRejectsInvalid(t *testing.T) {
	root := &Node{Kind: KindSplit, Sizes: []float32{0.5, 0.5}, Children: []*Node{NewTerminal(), NewTerminal()}}
	assert.ErrorIs(t, UpdateSplitSizes(root, nil, []float32{1}), ErrInvalidArgument)
	assert.ErrorIs(t, UpdateSplitSizes(root, nil, []float32{0, 0}), ErrInvalidArgument)
}

func TestSetTabActiveBoundsChecked(t *testing.T) {
	root := &Node{Kind: KindTabs, Children: []*Node{NewTerminal(), NewTerminal()}}
	require.NoError(t, SetTabActive(root, nil, 1))
	assert.Equal(t, 1, root.ActiveTab)
	assert.ErrorIs(t, SetTabActive(root, nil, 5), ErrInvalidArgument)
}

func TestFindByID(t *testing.T) {
	root := &Node{
		Kind:  KindSplit,
		Sizes: []float32{0.5, 0.5},
		Children: []*Node{
			NewTerminalFor("a"),
			{Kind: KindTabs, Children: []*Node{NewTerminalFor("b"), appNode("c")}},
		},
	}
	p, ok := FindByID(root, "b")
	require.True(t, ok)
	assert.Equal(t, Path{1, 0}, p)

	p, ok = FindByID(root, "c")
	require.True(t, ok)
	assert.Equal(t, Path{1, 1}, p)

	_, ok = FindByID(root, "missing")
	assert.False(t, ok)
}

func TestMoveIntoLeafCreatesTabs(t *testing.T) {
	root := &Node{
		Kind:  KindSplit,
		Sizes: []float32{0.5, 0.5},
		Children: []*Node{
			NewTerminalFor("a"),
			NewTerminalFor("b"),
		},
	}
	err := Move(root, Path{1}, Path{0}, Into)
	require.NoError(t, err)
	require.Equal(t, KindTabs, root.Kind) // the Split's single remaining child (the new Tabs) collapses into root
	require.Len(t, root.Children, 2)
	assert.Equal(t, Id("a"), *root.Children[0].TerminalId)
	assert.Equal(t, Id("b"), *root.Children[1].TerminalId)
}

func TestMoveBeforeSibling(t *testing.T) {
	root := &Node{
		Kind:  KindSplit,
		Sizes: []float32{0.5, 0.5},
		Children: []*Node{
			NewTerminalFor("a"),
			NewTerminalFor("b"),
		},
	}
	err := Move(root, Path{1}, Path{0}, Before)
	require.NoError(t, err)
	require.Equal(t, KindSplit, root.Kind)
	require.Len(t, root.Children, 2)
	assert.Equal(t, Id("b"), *root.Children[0].TerminalId)
	assert.Equal(t, Id("a"), *root.Children[1].TerminalId)
}

func TestValidateCatchesOutOfRangeActiveTab(t *testing.T) {
	root := &Node{Kind: KindTabs, ActiveTab: 3, Children: []*Node{NewTerminal()}}
	assert.False(t, Validate(root))
}

func appNode(id Id) *Node {
	return &Node{Kind: KindApp, AppId: &id, AppKind: "automation"}
}
