package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_AddChild_DepthAndAdjacency(t *testing.T) {
	tr := New("root question")
	root := tr.Get(tr.RootID())
	require.NotNil(t, root)
	assert.Equal(t, 0, root.Depth)

	child := tr.AddChild(tr.RootID(), KindCode, "print(1)")
	require.NotNil(t, child)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, tr.RootID(), child.ParentID)

	parent := tr.Get(tr.RootID())
	assert.Contains(t, parent.Children, child.ID)
	assert.Len(t, parent.Children, 1, "parent's child list contains the node's id exactly once")

	grandchild := tr.AddChild(child.ID, KindResult, "42")
	assert.Equal(t, 2, grandchild.Depth, "depth(child) = depth(parent) + 1")
}

func TestTree_AvgValue_ZeroWhenUnvisited(t *testing.T) {
	tr := New("q")
	n := tr.Get(tr.RootID())
	assert.Equal(t, 0.0, n.AvgValue())
}

func TestTree_Backpropagate_IncrementsAlongPath(t *testing.T) {
	tr := New("q")
	child := tr.AddChild(tr.RootID(), KindCode, "x")
	grandchild := tr.AddChild(child.ID, KindResult, "y")

	tr.Backpropagate(grandchild.ID, 0.8)

	for _, id := range []string{grandchild.ID, child.ID, tr.RootID()} {
		n := tr.Get(id)
		assert.Equal(t, 1, n.Visits)
		assert.InDelta(t, 0.8, n.TotalValue, 1e-9)
	}

	tr.Backpropagate(grandchild.ID, 0.2)
	assert.Equal(t, 2, tr.Get(tr.RootID()).Visits, "visits_after - visits_before == 1 per iteration")
	assert.InDelta(t, 1.0, tr.Get(tr.RootID()).TotalValue, 1e-9)
}

func TestSnapshot_TruncatesToSpecCaps(t *testing.T) {
	tr := New("q")
	child := tr.AddChild(tr.RootID(), KindCode, strings.Repeat("a", 1000))
	child.Code = strings.Repeat("b", 1000)
	child.Stdout = strings.Repeat("c", 1000)
	child.Stderr = strings.Repeat("d", 1000)

	snap := tr.Snapshot()
	node := snap.Nodes[child.ID]
	assert.Len(t, node.Content, MaxContentChars)
	assert.Len(t, node.Code, MaxCodeChars)
	assert.Len(t, node.Stdout, MaxStdoutChars)
	assert.Len(t, node.Stderr, MaxStderrChars)
	assert.Equal(t, tr.RootID(), snap.RootID)
}

func TestSnapshot_RoundTripPreservesAdjacencyAndStats(t *testing.T) {
	tr := New("q")
	child := tr.AddChild(tr.RootID(), KindCode, "x")
	tr.Backpropagate(child.ID, 0.5)

	snap := tr.Snapshot()

	rootSnap := snap.Nodes[tr.RootID()]
	childSnap := snap.Nodes[child.ID]
	assert.Contains(t, rootSnap.Children, child.ID)
	assert.Equal(t, rootSnap.ID, childSnap.ParentID)
	assert.Equal(t, 1, childSnap.Visits)
	assert.InDelta(t, 0.5, childSnap.TotalValue, 1e-9)
}
