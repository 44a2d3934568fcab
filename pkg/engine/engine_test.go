package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/kadirpekel/oraculum/pkg/llm"
	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/reward"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedEvaluator struct{ score float64 }

func (f *fixedEvaluator) Evaluate(ctx context.Context, node *tree.Node, isRoot bool) (float64, error) {
	if isRoot {
		return 0.5, nil
	}
	return f.score, nil
}

type fixedLLM struct{ resp string }

func (f *fixedLLM) Chat(ctx context.Context, req llm.Request) (string, error) {
	return f.resp, nil
}

func newTestEngine(t *testing.T, llmResp string, evalScore float64) (*Engine, *tree.Tree) {
	t.Helper()
	tr := tree.New("how many lines?")
	sb := sandbox.New(sandbox.VariantTranscript, time.Second, nil)
	p := policy.New(&fixedLLM{resp: llmResp}, "gpt-4o", 10)
	ev := &fixedEvaluator{score: evalScore}
	sy := synth.New(&fixedLLM{resp: "42 lines"}, "gpt-4o", nil)
	e := New(tr, sb, p, ev, sy, "how many lines?", Config{MaxIterations: 1, MaxDepth: 5})
	return e, tr
}

func TestEngine_UCB1_UnvisitedChildOutranksVisitedSibling(t *testing.T) {
	tr := tree.New("q")
	root := tr.Get(tr.RootID())
	visited := tr.AddChild(root.ID, tree.KindCode, "a")
	unvisited := tr.AddChild(root.ID, tree.KindCode, "b")
	tr.Backpropagate(visited.ID, 0.9)

	e := &Engine{tree: tr}
	best := e.bestChild(tr.Get(root.ID))
	assert.Equal(t, unvisited.ID, best.ID)
}

func TestEngine_SingleCodeChildScenario(t *testing.T) {
	e, tr := newTestEngine(t, "```python\nprint(len(context.split(chr(10))))\n```\n", 0.8)
	e.sandbox = sandbox.New(sandbox.VariantTranscript, time.Second, nil)
	// The root expands to static strategy seeds without the LLM, so the
	// scenario starts from a strategy leaf whose expansion is one code child.
	leaf := tr.AddChild(tr.RootID(), tree.KindStrategy, "count the lines")

	err := e.iterate(context.Background(), 0, 1)
	require.NoError(t, err)

	root := tr.Get(tr.RootID())
	parent := tr.Get(leaf.ID)
	require.Len(t, parent.Children, 1)
	child := tr.Get(parent.Children[0])

	assert.Equal(t, 1, root.Visits)
	assert.InDelta(t, 0.8, root.TotalValue, 1e-9)
	assert.Equal(t, 1, child.Visits)
	assert.InDelta(t, 0.8, child.TotalValue, 1e-9)
}

func TestEngine_TimeoutScenario(t *testing.T) {
	tr := tree.New("q")
	sb := sandbox.New(sandbox.VariantTranscript, 20*time.Millisecond, nil)
	p := policy.New(&fixedLLM{resp: "```python\ni = 0\nwhile True:\n    i = i + 1\n```\n"}, "gpt-4o", 10)
	ev := &fixedEvaluator{score: 0.0}
	sy := synth.New(&fixedLLM{resp: "n/a"}, "gpt-4o", nil)
	e := New(tr, sb, p, ev, sy, "q", Config{MaxIterations: 1})
	leaf := tr.AddChild(tr.RootID(), tree.KindStrategy, "loop forever")

	err := e.iterate(context.Background(), 0, 1)
	require.NoError(t, err)

	child := tr.Get(tr.Get(leaf.ID).Children[0])
	assert.Equal(t, 1, child.Visits)
	assert.Equal(t, 0.0, child.TotalValue)
	assert.Contains(t, child.Stderr, "timed out")
}

func TestEngine_BranchHistoryFallsBackToNearestAncestor(t *testing.T) {
	e, tr := newTestEngine(t, "```python\nprint('x')\n```\n", 0.5)
	root := tr.Get(tr.RootID())
	e.history[root.ID] = []tree.HistoryTurn{{Role: "user", Content: "root turn"}}

	child := tr.AddChild(root.ID, tree.KindCode, "child with no own history")
	grandchild := tr.AddChild(child.ID, tree.KindCode, "grandchild")

	hist := e.historyFor(grandchild.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, "root turn", hist[0].Content)
}

func TestEngine_BackpropagateVisitsIncrementByOnePerIteration(t *testing.T) {
	e, tr := newTestEngine(t, "```python\nprint(1)\n```\n", 0.3)
	require.NoError(t, e.iterate(context.Background(), 0, 2))
	require.NoError(t, e.iterate(context.Background(), 1, 2))

	root := tr.Get(tr.RootID())
	assert.Equal(t, 2, root.Visits)
}

func TestUCB1_InfiniteForUnvisited(t *testing.T) {
	n := &tree.Node{Visits: 0}
	assert.True(t, math.IsInf(ucb1(n, 5), 1))
}

func TestRubricEvaluator_TracksParentMAEForIterationSignal(t *testing.T) {
	runner := &fakeRunner{}
	re := NewRubricEvaluator(runner)

	parent := &tree.Node{ID: "parent", Code: "return 0.5"}
	runner.rc = reward.RubricContext{
		Success:          true,
		TrainPredictions: []float64{0.3, 0.5},
		TrainActuals:     []float64{0.0, 0.5},
		EvalPredictions:  []float64{0.0, 0.5},
		EvalActuals:      []float64{0.3, 0.5},
	}
	_, err := re.Evaluate(context.Background(), parent, false)
	require.NoError(t, err)

	child := &tree.Node{ID: "child", ParentID: "parent", Code: "return 0.4"}
	runner.rc = reward.RubricContext{
		Success:          true,
		TrainPredictions: []float64{0.1, 0.5},
		TrainActuals:     []float64{0.0, 0.5},
		EvalPredictions:  []float64{0.05, 0.5},
		EvalActuals:      []float64{0.0, 0.5},
	}
	_, err = re.Evaluate(context.Background(), child, false)
	require.NoError(t, err)

	assert.NotEqual(t, -1.0, re.maes["parent"])
}

type fakeRunner struct{ rc reward.RubricContext }

func (f *fakeRunner) Run(ctx context.Context, code string) (reward.RubricContext, error) {
	return f.rc, nil
}
