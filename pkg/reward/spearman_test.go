package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpearman_PerfectCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, Spearman(a, b), 1e-9)
}

func TestSpearman_PerfectAntiCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{5, 4, 3, 2, 1}
	assert.InDelta(t, -1.0, Spearman(a, b), 1e-9)
}

func TestSpearman_TiesUseAverageRank(t *testing.T) {
	a := []float64{1, 1, 2, 3}
	b := []float64{1, 1, 2, 3}
	assert.InDelta(t, 1.0, Spearman(a, b), 1e-9)
}

func TestSpearman_NoVarianceReturnsZero(t *testing.T) {
	a := []float64{1, 1, 1}
	b := []float64{1, 2, 3}
	assert.Equal(t, 0.0, Spearman(a, b))
}

func TestSpearman_MismatchedLengthReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Spearman([]float64{1, 2}, []float64{1}))
}
