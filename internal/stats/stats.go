// Package stats provides the small set of statistics the gate engine
// and model trainer share. All functions are deterministic and treat
// degenerate inputs (empty, zero variance) by returning ok=false
// rather than NaN.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean.
func Mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), true
}

// Std returns the sample standard deviation (ddof=1).
func Std(xs []float64) (float64, bool) {
	n := len(xs)
	if n < 2 {
		return 0, false
	}
	mu, _ := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}

// Median returns the middle value (mean of the two middles for even n).
func Median(xs []float64) (float64, bool) {
	n := len(xs)
	if n == 0 {
		return 0, false
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2], true
	}
	return (s[n/2-1] + s[n/2]) / 2, true
}

// Pearson returns the Pearson correlation coefficient of two equal
// length series. ok=false when either side has zero variance.
func Pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0, false
	}
	var ma, mb float64
	for i := 0; i < n; i++ {
		ma += a[i]
		mb += b[i]
	}
	ma /= float64(n)
	mb /= float64(n)

	var num, da, db float64
	for i := 0; i < n; i++ {
		x := a[i] - ma
		y := b[i] - mb
		num += x * y
		da += x * x
		db += y * y
	}
	den := math.Sqrt(da * db)
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Spearman returns the rank correlation of two equal length series,
// with average ranks for ties.
func Spearman(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) < 2 {
		return 0, false
	}
	return Pearson(AverageRanks(a), AverageRanks(b))
}

// AverageRanks converts values to 1-based ranks; tied values receive
// the mean of the ranks they would span.
func AverageRanks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return xs[idx[i]] < xs[idx[j]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		// positions i..j share the averaged rank
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// PercentileRank returns each value's percentile rank in (0, 1],
// average tie method: rank divided by n.
func PercentileRank(xs []float64) []float64 {
	n := len(xs)
	ranks := AverageRanks(xs)
	out := make([]float64, n)
	for i, r := range ranks {
		out[i] = r / float64(n)
	}
	return out
}

// Cosine returns the cosine similarity of two equal length vectors.
// ok=false when either vector is zero.
func Cosine(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0, false
	}
	return dot / den, true
}

// Quantile returns the q-quantile with linear interpolation between
// order statistics, matching the convention of the usual dataframe
// libraries: position = q * (n - 1).
func Quantile(xs []float64, q float64) (float64, bool) {
	n := len(xs)
	if n == 0 || q < 0 || q > 1 {
		return 0, false
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if n == 1 {
		return s[0], true
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo], true
	}
	frac := pos - float64(lo)
	return s[lo]*(1-frac) + s[hi]*frac, true
}
