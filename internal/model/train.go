package model

import (
	"fmt"
	"math"

	"github.com/hmuraoka/kabuto/internal/stats"
)

const (
	elasticNetMaxIter = 1000
	elasticNetTol     = 1e-7
)

// Train fits the configured estimator on the labeled rows. Missing
// values are imputed with the column's training mean, columns are
// standardized, and the intercept absorbs the label mean, so the
// penalty never acts on the intercept.
func Train(d *Dataset, cfg Config) (*Model, error) {
	n := d.Len()
	if n == 0 {
		return nil, fmt.Errorf("model train: no rows with a computable forward return")
	}
	p := len(d.Features)
	if p == 0 {
		return nil, fmt.Errorf("model train: no feature columns configured")
	}

	means, stds := columnStats(d.X, p)

	// Standardized design matrix. Imputing the mean first makes the
	// imputed entries standardize to exactly zero.
	z := make([][]float64, n)
	for i := 0; i < n; i++ {
		z[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			v := d.X[i][j]
			if math.IsNaN(v) {
				v = means[j]
			}
			z[i][j] = (v - means[j]) / stds[j]
		}
	}

	yMean, _ := stats.Mean(d.Y)
	yc := make([]float64, n)
	for i, v := range d.Y {
		yc[i] = v - yMean
	}

	var coef []float64
	var err error
	switch cfg.Type {
	case TypeRidge:
		coef, err = fitRidge(z, yc, cfg.Alpha)
	case TypeElasticNet:
		coef = fitElasticNet(z, yc, cfg.Alpha, cfg.L1Ratio)
	default:
		return nil, fmt.Errorf("model train: unknown estimator %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	m := &Model{
		Type:      cfg.Type,
		Features:  append([]string(nil), d.Features...),
		Coef:      coef,
		Intercept: yMean,
		Means:     means,
		Stds:      stds,
		TrainRows: n,
	}
	m.TrainIC = RankIC(m.PredictAll(d), d.Y)
	return m, nil
}

// columnStats computes the per-column mean of the observed values and
// the population standard deviation after mean imputation. A column
// with no observed values gets mean 0; zero variance maps to scale 1
// so the column contributes nothing after standardization.
func columnStats(x [][]float64, p int) (means, stds []float64) {
	n := len(x)
	means = make([]float64, p)
	stds = make([]float64, p)
	for j := 0; j < p; j++ {
		var sum float64
		var cnt int
		for i := 0; i < n; i++ {
			if v := x[i][j]; !math.IsNaN(v) {
				sum += v
				cnt++
			}
		}
		if cnt > 0 {
			means[j] = sum / float64(cnt)
		}

		// Imputed entries sit exactly at the mean and add nothing to
		// the squared deviation sum.
		var ss float64
		for i := 0; i < n; i++ {
			if v := x[i][j]; !math.IsNaN(v) {
				dlt := v - means[j]
				ss += dlt * dlt
			}
		}
		sd := math.Sqrt(ss / float64(n))
		if sd == 0 {
			sd = 1
		}
		stds[j] = sd
	}
	return means, stds
}

// fitRidge solves the normal equations (Z'Z + alpha I) b = Z'y.
func fitRidge(z [][]float64, y []float64, alpha float64) ([]float64, error) {
	n := len(z)
	p := len(z[0])

	a := make([][]float64, p)
	for j := 0; j < p; j++ {
		a[j] = make([]float64, p)
	}
	b := make([]float64, p)
	for j := 0; j < p; j++ {
		for k := j; k < p; k++ {
			var s float64
			for i := 0; i < n; i++ {
				s += z[i][j] * z[i][k]
			}
			a[j][k] = s
			a[k][j] = s
		}
		a[j][j] += alpha
		var s float64
		for i := 0; i < n; i++ {
			s += z[i][j] * y[i]
		}
		b[j] = s
	}

	coef, err := solveLinear(a, b)
	if err != nil {
		return nil, fmt.Errorf("ridge fit: %w", err)
	}
	return coef, nil
}

// fitElasticNet minimizes 1/(2n)·||y - Zb||² + alpha·l1·||b||₁ +
// alpha·(1-l1)/2·||b||² by cyclic coordinate descent. The sweep order
// is fixed, so the result is deterministic.
func fitElasticNet(z [][]float64, y []float64, alpha, l1Ratio float64) []float64 {
	n := len(z)
	p := len(z[0])
	nf := float64(n)

	colSq := make([]float64, p)
	for j := 0; j < p; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += z[i][j] * z[i][j]
		}
		colSq[j] = s
	}

	coef := make([]float64, p)
	resid := append([]float64(nil), y...)

	l1 := alpha * l1Ratio
	l2 := alpha * (1 - l1Ratio)

	for iter := 0; iter < elasticNetMaxIter; iter++ {
		var maxDelta float64
		for j := 0; j < p; j++ {
			denom := colSq[j]/nf + l2
			if denom == 0 {
				continue
			}
			// Partial residual correlation with column j.
			var rho float64
			for i := 0; i < n; i++ {
				rho += z[i][j] * (resid[i] + z[i][j]*coef[j])
			}
			rho /= nf

			next := softThreshold(rho, l1) / denom
			if delta := next - coef[j]; delta != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= z[i][j] * delta
				}
				coef[j] = next
				if ad := math.Abs(delta); ad > maxDelta {
					maxDelta = ad
				}
			}
		}
		if maxDelta < elasticNetTol {
			break
		}
	}
	return coef
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// RankIC is the Spearman rank correlation between predictions and
// realized returns. Degenerate inputs (fewer than 3 rows, zero
// variance) score 0 rather than failing, matching how gate folds treat
// an uninformative fit.
func RankIC(pred, actual []float64) float64 {
	if len(pred) < 3 || len(pred) != len(actual) {
		return 0
	}
	ic, ok := stats.Spearman(pred, actual)
	if !ok || math.IsNaN(ic) {
		return 0
	}
	return ic
}
