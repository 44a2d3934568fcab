package reward

import (
	"math"
	"strings"

	"github.com/kadirpekel/oraculum/pkg/tree"
)

// Weights for the five algorithmic signals used by the rubric-discovery
// composite score.
const (
	weightGeneralization = 1.0
	weightCalibration    = 0.4
	weightDiscrimination = 0.3
	weightValidity       = 0.2
	weightIteration      = 0.2
)

// RubricContext carries everything the composite evaluator needs beyond
// the node itself: predicted-vs-actual pairs on the training and held-out
// splits, whether the rubric executed successfully, its source code (for
// the validity heuristics), and the parent node's MAE (negative when the
// node has no evaluated parent).
type RubricContext struct {
	Success          bool
	TrainPredictions []float64
	TrainActuals     []float64
	EvalPredictions  []float64
	EvalActuals      []float64
	ParentMAE        float64
	RubricCode       string
}

// Composite computes the five-signal weighted score and returns both the
// combined scalar and the individual components for display.
func Composite(rc RubricContext) (float64, tree.RewardComponents) {
	if !rc.Success {
		comp := tree.RewardComponents{}
		return 0, comp
	}

	trainMAE := mae(rc.TrainPredictions, rc.TrainActuals)
	evalMAE := mae(rc.EvalPredictions, rc.EvalActuals)

	comp := tree.RewardComponents{
		Generalization: generalization(trainMAE, evalMAE),
		Calibration:    calibration(rc.TrainPredictions, rc.TrainActuals),
		Discrimination: discrimination(rc.TrainPredictions, rc.TrainActuals),
		Validity:       validity(rc.Success, rc.RubricCode),
		Iteration:      iteration(rc.ParentMAE, trainMAE),
	}

	num := weightGeneralization*comp.Generalization +
		weightCalibration*comp.Calibration +
		weightDiscrimination*comp.Discrimination +
		weightValidity*comp.Validity +
		weightIteration*comp.Iteration
	den := weightGeneralization + weightCalibration + weightDiscrimination + weightValidity + weightIteration

	return clamp01(num / den), comp
}

func mae(predictions, actuals []float64) float64 {
	n := len(predictions)
	if n == 0 || n != len(actuals) {
		return 1
	}
	var sum float64
	for i := range predictions {
		sum += math.Abs(predictions[i] - actuals[i])
	}
	return sum / float64(n)
}

func generalization(trainMAE, evalMAE float64) float64 {
	return clamp01(math.Max(0, 1-evalMAE) * (1 - math.Min(evalMAE-trainMAE, 1)))
}

func calibration(predictions, actuals []float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	muP, sdP := meanStd(predictions)
	muA, sdA := meanStd(actuals)

	meanTerm := 0.6 * (1 - math.Abs(muP-muA))
	spreadRatio := 1.0
	if sdP > 0 || sdA > 0 {
		hi, lo := math.Max(sdP, sdA), math.Min(sdP, sdA)
		if hi == 0 {
			spreadRatio = 1
		} else {
			spreadRatio = lo / hi
		}
	}
	return clamp01(meanTerm + 0.4*spreadRatio)
}

func discrimination(predictions, actuals []float64) float64 {
	rho := Spearman(predictions, actuals)
	return clamp01((rho + 1) / 2)
}

// validity scores 0 on failure; otherwise a base of 0.6 with a bonus for
// rubric code showing conditional logic (non-trivial) and a penalty for
// rubrics that always return the same literal (constant-return).
func validity(success bool, code string) float64 {
	if !success {
		return 0
	}
	score := 0.6
	if strings.Contains(code, "if ") || strings.Contains(code, "elif ") {
		score += 0.2
	}
	if looksConstantReturn(code) {
		score -= 0.3
	}
	return clamp01(score)
}

func looksConstantReturn(code string) bool {
	trimmed := strings.TrimSpace(code)
	lines := strings.Split(trimmed, "\n")
	returnCount := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "return ") {
			returnCount++
		}
	}
	return returnCount == 1 && !strings.Contains(code, "if ")
}

func iteration(parentMAE, currentMAE float64) float64 {
	if parentMAE < 0 {
		return clamp01(1 - currentMAE)
	}
	if parentMAE == 0 {
		return clamp01(0.3)
	}
	return clamp01(0.3 + 0.7*(parentMAE-currentMAE)/parentMAE)
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sqSum float64
	for _, x := range xs {
		d := x - mean
		sqSum += d * d
	}
	return mean, math.Sqrt(sqSum / float64(len(xs)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
