package dataset

import (
	"context"
	"testing"

	"github.com/kadirpekel/oraculum/pkg/sandbox"
	"github.com/kadirpekel/oraculum/pkg/sandbox/interp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox is a minimal stand-in for *sandbox.Sandbox that never
// parses code: Execute just records whether it was called and whether it
// should report failure, and CallFunc returns the seeded per-response
// prediction it was configured with.
type fakeSandbox struct {
	seeds        map[string]interp.Value
	executeErr   error
	executed     []string
	predictOf    map[string]float64 // response text -> predicted score
	callFuncErrs map[string]bool    // response text -> force CallFunc error
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		seeds:        map[string]interp.Value{},
		predictOf:    map[string]float64{},
		callFuncErrs: map[string]bool{},
	}
}

func (f *fakeSandbox) Seed(name string, value interp.Value) { f.seeds[name] = value }

func (f *fakeSandbox) Execute(ctx context.Context, code string) (*sandbox.Result, error) {
	f.executed = append(f.executed, code)
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return &sandbox.Result{}, nil
}

func (f *fakeSandbox) CallFunc(ctx context.Context, name string, args []interp.Value) (interp.Value, error) {
	response, _ := args[0].(string)
	if f.callFuncErrs[response] {
		return nil, assert.AnError
	}
	return f.predictOf[response], nil
}

func recs(pairs ...[2]any) []Record {
	out := make([]Record, len(pairs))
	for i, p := range pairs {
		out[i] = Record{Response: p[0].(string), ActualScore: p[1].(float64)}
	}
	return out
}

func TestRubricRunner_SeedsTrainingAndSampleExamplesOnFirstRun(t *testing.T) {
	train := []Record{{Input: "a", Response: "ra", ActualScore: 0.1}, {Input: "b", Response: "rb", ActualScore: 0.9}}
	sb := newFakeSandbox()
	r := NewRubricRunner(sb, Split{Train: train}, 10, 123)

	_, err := r.Run(context.Background(), "def rubric_fn(x):\n    return 0.5\n")
	require.NoError(t, err)

	list, ok := sb.seeds["training_examples"].(*interp.List)
	require.True(t, ok)
	assert.Len(t, list.Elems, 2)

	_, ok = sb.seeds["sample_examples"].(*interp.List)
	assert.True(t, ok)
}

func TestRubricRunner_ExecuteFailureYieldsUnsuccessfulContext(t *testing.T) {
	sb := newFakeSandbox()
	sb.executeErr = assert.AnError
	r := NewRubricRunner(sb, Split{Train: recs([2]any{"r1", 0.5})}, 6, 1)

	rc, err := r.Run(context.Background(), "this is not valid")
	require.NoError(t, err)
	assert.False(t, rc.Success)
	assert.Nil(t, rc.TrainPredictions)
}

func TestRubricRunner_ScoresTrainAndEvalSeparatelyWithClamping(t *testing.T) {
	train := recs([2]any{"good", 0.8}, [2]any{"bad", 0.1})
	evalSet := recs([2]any{"held-out", 0.5})

	sb := newFakeSandbox()
	sb.predictOf["good"] = 0.8
	sb.predictOf["bad"] = 1.5 // out of range, must clamp to 1.0
	sb.predictOf["held-out"] = 0.4

	r := NewRubricRunner(sb, Split{Train: train, Eval: evalSet}, 6, 1)
	rc, err := r.Run(context.Background(), "def rubric_fn(x):\n    return 0.5\n")
	require.NoError(t, err)

	assert.True(t, rc.Success)
	assert.Equal(t, []float64{0.8, 1.0}, rc.TrainPredictions)
	assert.Equal(t, []float64{0.8, 0.1}, rc.TrainActuals)
	assert.Equal(t, []float64{0.4}, rc.EvalPredictions)
	assert.Equal(t, []float64{0.5}, rc.EvalActuals)
}

func TestRubricRunner_CallFuncErrorScoresZeroWithoutAbortingPass(t *testing.T) {
	train := recs([2]any{"raises", 0.5}, [2]any{"fine", 0.2})
	sb := newFakeSandbox()
	sb.callFuncErrs["raises"] = true
	sb.predictOf["fine"] = 0.2

	r := NewRubricRunner(sb, Split{Train: train}, 6, 1)
	rc, err := r.Run(context.Background(), "def rubric_fn(x):\n    return 1 / 0\n")
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0.2}, rc.TrainPredictions)
}

func TestRubricRunner_EmptySplitYieldsNilPredictions(t *testing.T) {
	sb := newFakeSandbox()
	r := NewRubricRunner(sb, Split{}, 6, 1)
	rc, err := r.Run(context.Background(), "def rubric_fn(x):\n    return 0.5\n")
	require.NoError(t, err)
	assert.Nil(t, rc.TrainPredictions)
	assert.Nil(t, rc.EvalPredictions)
}
