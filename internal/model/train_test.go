package model

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

func tday(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// mkDataset builds a dataset directly from a matrix, assigning one
// synthetic code per row block of ten and sequential dates.
func mkDataset(features []string, x [][]float64, y []float64) *Dataset {
	d := &Dataset{Features: features, X: x, Y: y}
	for i := range x {
		d.Rows = append(d.Rows, &contracts.FeatureRow{
			Date: tday(i % 10),
			Code: string(rune('A' + i/10)),
		})
	}
	return d
}

func TestForwardReturns(t *testing.T) {
	mk := func(d time.Time, c float64) *contracts.Bar {
		return &contracts.Bar{Date: d, Code: "7203", Close: &c}
	}
	bars := map[string][]*contracts.Bar{
		"7203": {
			mk(tday(0), 100),
			mk(tday(1), 110),
			mk(tday(2), 105),
			mk(tday(3), 120),
		},
	}

	labels := ForwardReturns(bars, 2)
	require.Len(t, labels, 2, "last two rows have no forward price")

	v, ok := labels[LabelKey{Code: "7203", Date: tday(0)}]
	require.True(t, ok)
	assert.InDelta(t, 0.05, v, 1e-12)

	v, ok = labels[LabelKey{Code: "7203", Date: tday(1)}]
	require.True(t, ok)
	assert.InDelta(t, (120.0-110.0)/110.0, v, 1e-12)

	// adj_close を優先する
	adj := 200.0
	bars["7203"][0].AdjClose = &adj
	labels = ForwardReturns(bars, 2)
	v = labels[LabelKey{Code: "7203", Date: tday(0)}]
	assert.InDelta(t, (105.0-200.0)/200.0, v, 1e-12)
}

func TestForwardReturnsSkipsNonpositive(t *testing.T) {
	zero, hundred := 0.0, 100.0
	bars := map[string][]*contracts.Bar{
		"1111": {
			{Date: tday(0), Code: "1111", Close: &zero},
			{Date: tday(1), Code: "1111", Close: &hundred},
			{Date: tday(2), Code: "1111", Close: &hundred},
		},
	}
	labels := ForwardReturns(bars, 1)
	_, ok := labels[LabelKey{Code: "1111", Date: tday(0)}]
	assert.False(t, ok, "zero base price cannot produce a return")
	_, ok = labels[LabelKey{Code: "1111", Date: tday(1)}]
	assert.True(t, ok)
}

func TestRidgeRecoversLinearSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 200
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64()
		b := rng.NormFloat64()
		x[i] = []float64{a, b}
		y[i] = 0.3 + 2*a - b
	}
	d := mkDataset([]string{"f1", "f2"}, x, y)

	m, err := Train(d, Config{Type: TypeRidge, Alpha: 1e-6})
	require.NoError(t, err)

	preds := m.PredictAll(d)
	for i := range preds {
		assert.InDelta(t, y[i], preds[i], 1e-3)
	}
	assert.Greater(t, m.TrainIC, 0.99)
	assert.Equal(t, []string{"f1", "f2"}, m.Features)
	assert.Positive(t, m.Coef[0])
	assert.Negative(t, m.Coef[1])
}

func TestElasticNetShrinksIrrelevantFeature(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 300
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		signal := rng.NormFloat64()
		noise := rng.NormFloat64()
		x[i] = []float64{signal, noise}
		y[i] = 1.5 * signal
	}
	d := mkDataset([]string{"signal", "noise"}, x, y)

	m, err := Train(d, Config{Type: TypeElasticNet, Alpha: 0.1, L1Ratio: 1.0})
	require.NoError(t, err)

	assert.Greater(t, m.Coef[0], 0.5, "informative coefficient survives the penalty")
	assert.InDelta(t, 0.0, m.Coef[1], 0.05, "noise coefficient is shrunk away")
	assert.Greater(t, m.TrainIC, 0.9)
}

func TestMeanImputation(t *testing.T) {
	x := [][]float64{
		{1}, {2}, {3}, {math.NaN()},
	}
	y := []float64{1, 2, 3, 2}
	d := mkDataset([]string{"f"}, x, y)

	m, err := Train(d, Config{Type: TypeRidge, Alpha: 0.001})
	require.NoError(t, err)

	// 訓練平均で補完された行は標準化後ゼロ、予測は切片に一致する
	pred := m.Predict([]float64{math.NaN()})
	assert.InDelta(t, m.Intercept, pred, 1e-12)
	assert.InDelta(t, 2.0, m.Intercept, 1e-12)
}

func TestZeroVarianceColumn(t *testing.T) {
	x := [][]float64{
		{1, 5}, {2, 5}, {3, 5}, {4, 5},
	}
	y := []float64{1, 2, 3, 4}
	d := mkDataset([]string{"live", "flat"}, x, y)

	m, err := Train(d, Config{Type: TypeRidge, Alpha: 0.001})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.Coef[1], 1e-9, "constant column carries no coefficient")
	for _, c := range m.Coef {
		assert.False(t, math.IsNaN(c))
	}

	m, err = Train(d, Config{Type: TypeElasticNet, Alpha: 0.01, L1Ratio: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.Coef[1], 1e-9)
}

func TestTrainEmptyDataset(t *testing.T) {
	d := &Dataset{Features: []string{"f"}}
	_, err := Train(d, Config{Type: TypeRidge, Alpha: 1})
	require.Error(t, err)

	d = mkDataset([]string{}, [][]float64{{}}, []float64{1})
	_, err = Train(d, Config{Type: TypeRidge, Alpha: 1})
	require.Error(t, err)
}

func TestTrainUnknownType(t *testing.T) {
	d := mkDataset([]string{"f"}, [][]float64{{1}, {2}, {3}}, []float64{1, 2, 3})
	_, err := Train(d, Config{Type: "ols"})
	require.Error(t, err)
}

func TestCoefMapBinding(t *testing.T) {
	x := [][]float64{{1, 2}, {2, 1}, {3, 4}, {4, 3}}
	y := []float64{1, 2, 3, 4}
	d := mkDataset([]string{"a", "b"}, x, y)

	m, err := Train(d, Config{Type: TypeRidge, Alpha: 0.1})
	require.NoError(t, err)

	cm := m.CoefMap()
	require.Len(t, cm, 2)
	assert.Equal(t, m.Coef[0], cm["a"])
	assert.Equal(t, m.Coef[1], cm["b"])
}

func TestSolveLinear(t *testing.T) {
	a := [][]float64{
		{2, 1, -1},
		{-3, -1, 2},
		{-2, 1, 2},
	}
	b := []float64{8, -11, -3}
	x, err := solveLinear(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, x[0], 1e-9)
	assert.InDelta(t, 3.0, x[1], 1e-9)
	assert.InDelta(t, -1.0, x[2], 1e-9)

	sing := [][]float64{{1, 2}, {2, 4}}
	_, err = solveLinear(sing, []float64{1, 2})
	require.Error(t, err)
}

func TestRankIC(t *testing.T) {
	assert.Equal(t, 0.0, RankIC([]float64{1, 2}, []float64{1, 2}), "fewer than 3 rows scores zero")
	assert.InDelta(t, 1.0, RankIC([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}), 1e-12)
	assert.InDelta(t, -1.0, RankIC([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}), 1e-12)
	assert.Equal(t, 0.0, RankIC([]float64{1, 1, 1}, []float64{1, 2, 3}), "zero variance scores zero")
}
