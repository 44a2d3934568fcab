package reward

import "sort"

// Spearman computes the Spearman rank correlation coefficient between two
// equal-length series, using average ranks for ties. Returns 0 when
// either series has zero variance (undefined correlation) or the series
// are shorter than 2.
func Spearman(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}
	ra := ranks(a)
	rb := ranks(b)

	var sumD2 float64
	for i := 0; i < n; i++ {
		d := ra[i] - rb[i]
		sumD2 += d * d
	}
	nf := float64(n)
	if !hasVariance(ra) || !hasVariance(rb) {
		return 0
	}
	return 1 - (6*sumD2)/(nf*(nf*nf-1))
}

func hasVariance(xs []float64) bool {
	if len(xs) == 0 {
		return false
	}
	first := xs[0]
	for _, x := range xs[1:] {
		if x != first {
			return true
		}
	}
	return false
}

// ranks assigns 1-based ranks to xs, averaging ranks across tied groups.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avgRank
		}
		i = j + 1
	}
	return out
}
