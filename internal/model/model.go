// Package model fits the two supported regularized linear estimators
// and scores feature rows with them. The fitted coefficient vector is
// bound to its exact feature-column ordering so scoring can never
// silently diverge from the order used in training.
package model

import (
	"math"
)

// Estimator names accepted by Config.Type.
const (
	TypeRidge      = "ridge"
	TypeElasticNet = "elastic_net"
)

// Config parameterizes one fit. The estimator is an explicit choice;
// nothing is selected automatically.
type Config struct {
	Type        string
	Alpha       float64
	L1Ratio     float64
	HorizonDays int
	Features    []string
}

// Model is a fitted linear predictor.
// ⭐ SSOT: 係数と特徴量カラム順は常にこの構造体で対になって動く
type Model struct {
	Type      string
	Features  []string
	Coef      []float64 // aligned with Features
	Intercept float64
	Means     []float64 // training means, used for imputation and centering
	Stds      []float64 // training scale, zero variance replaced by 1
	TrainRows int
	TrainIC   float64 // in-sample rank correlation of prediction vs label
}

// CoefMap returns the coefficients keyed by feature name.
func (m *Model) CoefMap() map[string]float64 {
	out := make(map[string]float64, len(m.Features))
	for i, f := range m.Features {
		out[f] = m.Coef[i]
	}
	return out
}

// Predict scores one raw row aligned with Features. NaN entries are
// imputed with the training mean, which standardizes to zero.
func (m *Model) Predict(x []float64) float64 {
	s := m.Intercept
	for j, v := range x {
		if math.IsNaN(v) {
			continue // (mean - mean) / std == 0
		}
		s += m.Coef[j] * (v - m.Means[j]) / m.Stds[j]
	}
	return s
}

// PredictAll scores every row of the dataset.
func (m *Model) PredictAll(d *Dataset) []float64 {
	out := make([]float64, d.Len())
	for i, x := range d.X {
		out[i] = m.Predict(x)
	}
	return out
}
