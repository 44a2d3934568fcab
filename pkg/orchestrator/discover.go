package orchestrator

import (
	"context"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/kadirpekel/oraculum/pkg/dataset"
	"github.com/kadirpekel/oraculum/pkg/engine"
	"github.com/kadirpekel/oraculum/pkg/logger"
	"github.com/kadirpekel/oraculum/pkg/policy"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/synth"
	"github.com/kadirpekel/oraculum/pkg/tree"
)

const (
	defaultSampleSize = 20
	defaultSampleSeed = int64(123)
	evalTolerance     = 0.15
	trainEvalFraction = 0.8
)

// LoadDataset decodes raw, computes an 80/20 train/eval split, and
// becomes the dataset every subsequent Discover call runs against until
// replaced by another LoadDataset call. Only one dataset is held at a
// time, matching the rubric variant's single-corpus-per-server design.
func (o *Orchestrator) LoadDataset(raw []byte) (dataset.Summary, error) {
	ds, err := dataset.Load(raw)
	if err != nil {
		return dataset.Summary{}, &apperr.Error{Kind: apperr.KindValidation, Msg: "decoding dataset", Err: err}
	}
	split := ds.Split(trainEvalFraction, defaultSampleSeed)
	summary := dataset.Summarize(split)

	o.mu.Lock()
	o.split = &split
	o.summary = summary
	o.hasData = true
	o.mu.Unlock()

	return summary, nil
}

// DatasetInfo returns the summary of the currently loaded dataset, or
// false if none has been loaded yet.
func (o *Orchestrator) DatasetInfo() (dataset.Summary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.summary, o.hasData
}

func (o *Orchestrator) currentSplit() (dataset.Split, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.hasData {
		return dataset.Split{}, false
	}
	return *o.split, true
}

// DiscoverRequest parameterizes a rubric-discovery run.
type DiscoverRequest struct {
	MaxIterations int
}

// DiscoveryResult is discovery_complete's payload: the winning rubric's
// source, its composite reward on the training run, and its measured
// generalization on the held-out eval split, matching the original
// get_eval_results() report.
type DiscoveryResult struct {
	BestRubricCode string                 `json:"best_rubric_code"`
	EvalMAE        float64                `json:"eval_mae"`
	EvalAccuracy   float64                `json:"eval_accuracy"`
	EvalCount      int                    `json:"eval_count"`
	BestComposite  *tree.RewardComponents `json:"best_composite,omitempty"`
	Tree           tree.Snapshot          `json:"tree"`
}

// Discover runs the rubric-refinement MCTS loop: expansion is capped at
// three children per call, evaluation uses the five-signal algorithmic
// composite, and the engine tracks and finally marks the best-scoring
// rubric found across all iterations.
func (o *Orchestrator) Discover(ctx context.Context, req DiscoverRequest, emit Emit) (DiscoveryResult, error) {
	split, ok := o.currentSplit()
	if !ok {
		emit(Event{Type: EventError, Payload: map[string]any{"message": "No dataset loaded."}})
		return DiscoveryResult{}, &apperr.Error{Kind: apperr.KindValidation, Msg: "no dataset loaded", Err: apperr.ErrNoDataset}
	}

	runLog := logger.SearchRunLogger("discover", uuid.NewString())
	runLog.Info("search started", slog.Int("num_training", len(split.Train)), slog.Int("num_eval", len(split.Eval)))

	emit(Event{Type: EventDiscoveryStarted, Payload: map[string]any{
		"num_training": len(split.Train), "num_eval": len(split.Eval),
	}})

	sb := sandbox.New(sandbox.VariantRubric, o.cfg.Sandbox.Timeout, o.llmQueryFunc())
	runner := dataset.NewRubricRunner(sb, split, defaultSampleSize, defaultSampleSeed)

	p := policy.New(o.llm, o.cfg.LLM.PolicyModel, o.cfg.Search.HistoryLimit)
	ev := engine.NewRubricEvaluator(runner)
	sy := synth.New(o.llm, o.cfg.LLM.PolicyModel, o.counter)

	t := tree.New("discover a rubric scoring function for this dataset")
	emitRootSnapshot(emit, t)

	eng := engine.New(t, sb, p, ev, sy, "discover a rubric scoring function", engine.Config{
		MaxIterations: o.maxIterations(req.MaxIterations),
		MaxDepth:      o.cfg.Search.MaxDepth,
		IsRubric:      true,
	})
	eng.OnNodeUpdate(func(u engine.NodeUpdate) { emitNodeUpdate(emit, u) })

	if _, _, err := eng.Search(ctx); err != nil {
		if apperr.Is(err, apperr.KindCanceled) || ctx.Err() != nil {
			return DiscoveryResult{}, err
		}
		runLog.Error("search failed", slog.String("err", err.Error()))
		emit(Event{Type: EventError, Payload: map[string]any{"message": err.Error()}})
		return DiscoveryResult{}, err
	}

	result := o.finalizeDiscovery(ctx, t, runner, split)
	emit(Event{Type: EventDiscoveryComplete, Payload: result})
	return result, nil
}

// finalizeDiscovery re-runs the best node's rubric once more to get
// fresh predictions for the eval report, mirroring get_eval_results()'s
// "run final evaluation on best rubric" step.
func (o *Orchestrator) finalizeDiscovery(ctx context.Context, t *tree.Tree, runner *dataset.RubricRunner, split dataset.Split) DiscoveryResult {
	best := t.Get(t.BestID())
	if best == nil {
		return DiscoveryResult{Tree: t.Snapshot()}
	}

	rc, err := runner.Run(ctx, best.Code)
	if err != nil || !rc.Success || len(rc.EvalPredictions) == 0 {
		return DiscoveryResult{BestRubricCode: best.Code, BestComposite: best.Reward, Tree: t.Snapshot()}
	}

	return DiscoveryResult{
		BestRubricCode: best.Code,
		EvalMAE:        round4(mae(rc.EvalPredictions, rc.EvalActuals)),
		EvalAccuracy:   round4(withinTolerance(rc.EvalPredictions, rc.EvalActuals, evalTolerance)),
		EvalCount:      len(rc.EvalPredictions),
		BestComposite:  best.Reward,
		Tree:           t.Snapshot(),
	}
}

func mae(predictions, actuals []float64) float64 {
	if len(predictions) == 0 || len(predictions) != len(actuals) {
		return 1
	}
	var sum float64
	for i := range predictions {
		sum += math.Abs(predictions[i] - actuals[i])
	}
	return sum / float64(len(predictions))
}

func withinTolerance(predictions, actuals []float64, tol float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	correct := 0
	for i := range predictions {
		if math.Abs(predictions[i]-actuals[i]) < tol {
			correct++
		}
	}
	return float64(correct) / float64(len(predictions))
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
