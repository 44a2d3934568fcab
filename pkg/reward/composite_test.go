package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposite_PredictionsEqualActuals_GeneralizationOneDiscriminationHigh(t *testing.T) {
	preds := []float64{0.1, 0.5, 0.9, 0.3}
	score, comps := Composite(RubricContext{
		Success:          true,
		TrainPredictions: preds,
		TrainActuals:     preds,
		EvalPredictions:  preds,
		EvalActuals:      preds,
		ParentMAE:        -1,
		RubricCode:       "if x > 0.5:\n    return 1.0\nreturn 0.0",
	})
	assert.InDelta(t, 1.0, comps.Generalization, 1e-9)
	assert.GreaterOrEqual(t, comps.Discrimination, 0.99)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestComposite_FailureYieldsZero(t *testing.T) {
	score, comps := Composite(RubricContext{Success: false})
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 0.0, comps.Generalization)
}

func TestComposite_IterationSignal_RefinementImproves(t *testing.T) {
	// Matches spec scenario 4: parent MAE 0.30, child MAE 0.15 -> 0.3 + 0.7*0.5 = 0.65.
	got := iteration(0.30, 0.15)
	assert.InDelta(t, 0.65, got, 1e-9)
}

func TestComposite_ValidityPenalizesConstantReturn(t *testing.T) {
	constScore := validity(true, "return 0.5")
	condScore := validity(true, "if x > 0.5:\n    return 1.0\nreturn 0.0")
	assert.Less(t, constScore, condScore)
}

func TestComposite_AllSignalsClampedToUnitInterval(t *testing.T) {
	score, comps := Composite(RubricContext{
		Success:          true,
		TrainPredictions: []float64{0, 1, 0, 1},
		TrainActuals:     []float64{1, 0, 1, 0},
		EvalPredictions:  []float64{0, 1, 0, 1},
		EvalActuals:      []float64{1, 0, 1, 0},
		ParentMAE:        0.1,
		RubricCode:       "return 1.0",
	})
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	for _, v := range []float64{comps.Generalization, comps.Calibration, comps.Discrimination, comps.Validity, comps.Iteration} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
