// Package engine drives the four-phase MCTS loop (select, expand,
// evaluate, backpropagate) over a pkg/tree.Tree, calling out to a
// pkg/policy.Policy for expansion, a pkg/sandbox.Sandbox for code
// execution, an Evaluator for scoring, and a pkg/synth.Synthesizer once
// the iteration budget is spent.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

const (
	defaultMaxIterations = 12
	defaultMaxDepth      = 5
	exploreConst         = 1.4142135623730951 // sqrt(2)
)

// NodeUpdate is emitted after every backpropagation.
type NodeUpdate struct {
	Focal     tree.SnapshotNode
	Snapshot  tree.Snapshot
	Iteration int
	Total     int
}

// Config parameterizes one Engine run.
type Config struct {
	MaxIterations int
	MaxDepth      int
	IsRubric      bool // rubric variant: cap expansion at 3 children, track best_node
}

// Engine owns one request-scoped tree and drives its search loop.
type Engine struct {
	tree      *tree.Tree
	sandbox   *sandbox.Sandbox
	policy    *policy.Policy
	evaluator Evaluator
	synth     *synth.Synthesizer
	cfg       Config
	question  string

	history map[string][]tree.HistoryTurn

	onNodeUpdate func(NodeUpdate)

	bestScore float64
}

func New(t *tree.Tree, sb *sandbox.Sandbox, p *policy.Policy, ev Evaluator, sy *synth.Synthesizer, question string, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Engine{
		tree:      t,
		sandbox:   sb,
		policy:    p,
		evaluator: ev,
		synth:     sy,
		cfg:       cfg,
		question:  question,
		history:   map[string][]tree.HistoryTurn{},
		bestScore: math.Inf(-1),
	}
}

// OnNodeUpdate registers the callback invoked after each backpropagation.
func (e *Engine) OnNodeUpdate(fn func(NodeUpdate)) { e.onNodeUpdate = fn }

// Search runs the fixed-iteration-budget loop and then synthesizes a
// final answer from the tree's evaluated leaves.
func (e *Engine) Search(ctx context.Context) (string, float64, error) {
	for i := 0; i < e.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		if err := e.iterate(ctx, i, e.cfg.MaxIterations); err != nil {
			return "", 0, fmt.Errorf("engine: iteration %d failed: %w", i, err)
		}
	}

	if e.cfg.IsRubric {
		e.tree.MarkFinal()
	}

	return e.synth.Synthesize(ctx, e.question, e.tree.All(), 0)
}

func (e *Engine) iterate(ctx context.Context, iteration, total int) error {
	leaf := e.selectLeaf()

	evalTarget := leaf
	if leaf.Depth < e.cfg.MaxDepth && len(leaf.Children) == 0 {
		child, err := e.expand(ctx, leaf)
		if err != nil {
			return fmt.Errorf("expand: %w", err)
		}
		if child != nil {
			evalTarget = child
		}
	}

	isRoot := evalTarget.ID == e.tree.RootID()
	score, err := e.evaluator.Evaluate(ctx, evalTarget, isRoot)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if e.cfg.IsRubric && score > e.bestScore {
		e.bestScore = score
		e.tree.SetBest(evalTarget.ID)
	}

	e.tree.Backpropagate(evalTarget.ID, score)

	if e.onNodeUpdate != nil {
		focal, _ := e.tree.NodeSnapshot(evalTarget.ID)
		e.onNodeUpdate(NodeUpdate{
			Focal:     focal,
			Snapshot:  e.tree.Snapshot(),
			Iteration: iteration + 1,
			Total:     total,
		})
	}
	return nil
}

// selectLeaf descends from the root picking, at each internal node, the
// child maximizing UCB1 until it reaches a node with no children.
func (e *Engine) selectLeaf() *tree.Node {
	n := e.tree.Get(e.tree.RootID())
	for len(n.Children) > 0 {
		n = e.bestChild(n)
	}
	return n
}

func (e *Engine) bestChild(parent *tree.Node) *tree.Node {
	parentVisits := parent.Visits
	if parentVisits < 1 {
		parentVisits = 1
	}

	var best *tree.Node
	bestScore := math.Inf(-1)
	for _, cid := range parent.Children {
		c := e.tree.Get(cid)
		score := ucb1(c, parentVisits)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best
}

func ucb1(child *tree.Node, parentVisits int) float64 {
	if child.Visits == 0 {
		return math.Inf(1)
	}
	return child.AvgValue() + exploreConst*math.Sqrt(math.Log(float64(parentVisits))/float64(child.Visits))
}

// expand calls the policy for candidate seeds, instantiates each as a
// child node (executing code-typed seeds in the sandbox), and returns the
// first new child for evaluation, per the resolved "evaluate only the
// first new child" behavior; remaining siblings are picked up by UCB1 on
// later iterations since unvisited children score +Inf.
func (e *Engine) expand(ctx context.Context, leaf *tree.Node) (*tree.Node, error) {
	isRoot := leaf.ID == e.tree.RootID()
	hist := e.historyFor(leaf.ID)

	seeds, err := e.policy.Expand(ctx, isRoot, hist, e.question, leaf.Stdout, leaf.Stderr)
	if err != nil {
		return nil, err
	}
	if e.cfg.IsRubric && len(seeds) > 3 {
		seeds = seeds[:3]
	}

	var first *tree.Node
	for _, seed := range seeds {
		kind := tree.KindStrategy
		if seed.Kind == policy.SeedKindCode {
			kind = tree.KindCode
		}
		child := e.tree.AddChild(leaf.ID, kind, seed.Content)

		if seed.Kind == policy.SeedKindCode {
			e.runCode(ctx, child, seed.Content)
		}

		childHist := append(append([]tree.HistoryTurn{}, hist...),
			tree.HistoryTurn{Role: "assistant", Content: seed.Content},
			tree.HistoryTurn{Role: "user", Content: child.Stdout + child.Stderr},
		)
		e.history[child.ID] = childHist

		if first == nil {
			first = child
		}
	}
	return first, nil
}

// runCode executes a code seed in the sandbox and folds the result into
// the child node: stdout/stderr/variables/elapsed, derived display
// content, and — if a final-answer marker was found — an answer child.
func (e *Engine) runCode(ctx context.Context, child *tree.Node, code string) {
	child.Code = code
	res, err := e.sandbox.Execute(ctx, code)
	if res == nil {
		child.Stderr = errString(err)
		child.Content = "error: " + errString(err)
		return
	}
	child.Stdout = res.Stdout
	child.Stderr = res.Stderr
	child.Variables = res.Variables
	child.ElapsedMS = res.Elapsed.Milliseconds()
	child.Content = deriveContent(res, err)

	if res.HasFinal {
		e.tree.AddChild(child.ID, tree.KindAnswer, res.FinalVar)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// deriveContent summarizes an execution result into the three display
// states the engine recognizes: success-with-output, error, or
// no-output-but-vars.
func deriveContent(res *sandbox.Result, err error) string {
	switch {
	case err != nil:
		return "error: " + res.Stderr
	case res.Stdout != "":
		return "success-with-output: " + res.Stdout
	default:
		return "no-output-but-vars"
	}
}

// historyFor returns the branch history for nodeID, walking up to the
// nearest ancestor with stored history when nodeID has none of its own.
func (e *Engine) historyFor(nodeID string) []tree.HistoryTurn {
	id := nodeID
	for id != "" {
		if h, ok := e.history[id]; ok {
			return h
		}
		n := e.tree.Get(id)
		if n == nil {
			break
		}
		id = n.ParentID
	}
	return nil
}
