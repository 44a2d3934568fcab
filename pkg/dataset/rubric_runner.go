package dataset

import (
	"context"
	"fmt"

	"github.com/kadirpekel/oraculum/pkg/reward"
	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/sandbox/interp"
)

// funcExecutor is the subset of *sandbox.Sandbox the runner needs,
// narrowed so tests can substitute a fake without building a real
// interpreter-backed sandbox.
type funcExecutor interface {
	Seed(name string, value interp.Value)
	Execute(ctx context.Context, code string) (*sandbox.Result, error)
	CallFunc(ctx context.Context, name string, args []interp.Value) (interp.Value, error)
}

// RubricRunner satisfies engine.RubricRunner: it executes a candidate
// rubric against a sandbox that already has the session's stratified
// sample bound into its namespace, then scores the resulting rubric_fn
// against the full training split and the held-out eval split. The eval
// split is never seeded into the sandbox; it's scored by calling back
// into the sandbox's namespace directly, so generated code never sees it
// as data it could special-case against.
type RubricRunner struct {
	sandbox    funcExecutor
	train      []Record
	eval       []Record
	sampleSize int
	sampleSeed int64
	seeded     bool
}

// NewRubricRunner builds a runner bound to one sandbox for the lifetime
// of a search session. The stratified sample is computed once, from the
// training split only, and lazily seeded into the sandbox on the first
// Run call.
func NewRubricRunner(sb funcExecutor, split Split, sampleSize int, sampleSeed int64) *RubricRunner {
	return &RubricRunner{
		sandbox:    sb,
		train:      split.Train,
		eval:       split.Eval,
		sampleSize: sampleSize,
		sampleSeed: sampleSeed,
	}
}

func (r *RubricRunner) ensureSeeded() {
	if r.seeded {
		return
	}
	ds := &Dataset{Records: r.train}
	sample := ds.Sample(r.sampleSize, r.sampleSeed)
	r.sandbox.Seed("training_examples", recordsToList(r.train))
	r.sandbox.Seed("sample_examples", recordsToList(sample))
	r.seeded = true
}

// Run executes code, which is expected to define a module-level
// `rubric_fn(response) -> float` callable, then scores that function
// against the full training split and the hidden eval split.
func (r *RubricRunner) Run(ctx context.Context, code string) (reward.RubricContext, error) {
	r.ensureSeeded()

	rc := reward.RubricContext{RubricCode: code}

	if _, err := r.sandbox.Execute(ctx, code); err != nil {
		rc.Success = false
		return rc, nil
	}
	rc.Success = true

	trainPred, trainActual := r.score(ctx, r.train)
	evalPred, evalActual := r.score(ctx, r.eval)

	rc.TrainPredictions, rc.TrainActuals = trainPred, trainActual
	rc.EvalPredictions, rc.EvalActuals = evalPred, evalActual
	return rc, nil
}

// score calls rubric_fn once per record's response text. A record whose
// call errors (missing rubric_fn, a raised exception, a non-numeric
// return) contributes a predicted score of 0, matching how a raising
// rubric_fn is treated during training: it doesn't abort the whole
// scoring pass, it just predicts badly.
func (r *RubricRunner) score(ctx context.Context, records []Record) ([]float64, []float64) {
	if len(records) == 0 {
		return nil, nil
	}
	preds := make([]float64, len(records))
	actuals := make([]float64, len(records))
	for i, rec := range records {
		actuals[i] = rec.ActualScore
		v, err := r.sandbox.CallFunc(ctx, "rubric_fn", []interp.Value{rec.Response})
		if err != nil {
			preds[i] = 0
			continue
		}
		preds[i] = clamp01(asFloatOrZero(v))
	}
	return preds, actuals
}

func asFloatOrZero(v interp.Value) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func recordsToList(records []Record) *interp.List {
	elems := make([]interp.Value, len(records))
	for i, r := range records {
		elems[i] = recordToDict(r)
	}
	return &interp.List{Elems: elems}
}

func recordToDict(r Record) *interp.Dict {
	d := interp.NewDict()
	d.Set("input", r.Input)
	d.Set("response", r.Response)
	d.Set("score", r.ActualScore)
	d.Set("spec", specToDict(r.Spec))
	return d
}

func specToDict(spec map[string]any) *interp.Dict {
	d := interp.NewDict()
	for k, v := range spec {
		d.Set(k, toInterpValue(v))
	}
	return d
}

// toInterpValue converts a decoded JSON value (map[string]any's dynamic
// element types) into the interpreter's Value representation.
func toInterpValue(v any) interp.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		return x
	case float64:
		return x
	case string:
		return x
	case []any:
		elems := make([]interp.Value, len(x))
		for i, e := range x {
			elems[i] = toInterpValue(e)
		}
		return &interp.List{Elems: elems}
	case map[string]any:
		d := interp.NewDict()
		for k, e := range x {
			d.Set(k, toInterpValue(e))
		}
		return d
	default:
		return fmt.Sprintf("%v", x)
	}
}
