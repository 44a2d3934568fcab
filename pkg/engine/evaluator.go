package engine

import (
	"context"

	"github.com/kadirpekel/oraculum/pkg/reward"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

// Evaluator is the common scoring contract both reward implementations
// satisfy: evaluate(node, context) -> scalar in [0,1].
type Evaluator interface {
	Evaluate(ctx context.Context, node *tree.Node, isRoot bool) (float64, error)
}

// JudgeEvaluator adapts reward.Judge to the engine's Evaluator interface.
type JudgeEvaluator struct {
	Judge *reward.Judge
}

func (e *JudgeEvaluator) Evaluate(ctx context.Context, node *tree.Node, isRoot bool) (float64, error) {
	return e.Judge.Evaluate(ctx, node, isRoot)
}

// RubricRunner executes a candidate rubric's code and scores it against
// the session's full training split and its held-out eval split,
// returning the predicted scores alongside their known actual scores.
type RubricRunner interface {
	Run(ctx context.Context, code string) (reward.RubricContext, error)
}

// RubricEvaluator adapts the algorithmic composite to the engine's
// Evaluator interface. It tracks each node's train MAE so the iteration
// signal can compare a child's MAE against its parent's.
type RubricEvaluator struct {
	Runner RubricRunner
	maes   map[string]float64 // node id -> train MAE, populated as nodes are scored
}

func NewRubricEvaluator(runner RubricRunner) *RubricEvaluator {
	return &RubricEvaluator{Runner: runner, maes: map[string]float64{}}
}

func (e *RubricEvaluator) Evaluate(ctx context.Context, node *tree.Node, isRoot bool) (float64, error) {
	if isRoot {
		return 0.5, nil
	}
	rc, err := e.Runner.Run(ctx, node.Code)
	if err != nil {
		return 0, err
	}

	parentMAE := -1.0
	if node.ParentID != "" {
		if m, ok := e.maes[node.ParentID]; ok {
			parentMAE = m
		}
	}
	rc.ParentMAE = parentMAE

	score, comp := reward.Composite(rc)
	node.Reward = &comp

	e.maes[node.ID] = trainMAEOf(rc)
	return score, nil
}

func trainMAEOf(rc reward.RubricContext) float64 {
	n := len(rc.TrainPredictions)
	if n == 0 || n != len(rc.TrainActuals) {
		return 1
	}
	var sum float64
	for i := range rc.TrainPredictions {
		d := rc.TrainPredictions[i] - rc.TrainActuals[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(n)
}
