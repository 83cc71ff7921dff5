package model

import (
	"fmt"
	"math"
)

// solveLinear solves A x = b by Gaussian elimination with partial
// pivoting. A and b are modified in place. The systems here are tiny
// (one row and column per feature), so a dense direct solve is enough.
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		// Pivot on the largest remaining magnitude in this column.
		pivot := col
		best := math.Abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if m := math.Abs(a[r][col]); m > best {
				best = m
				pivot = r
			}
		}
		if best == 0 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < n; c++ {
			s -= a[r][c] * x[c]
		}
		x[r] = s / a[r][r]
	}
	return x, nil
}
