package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	m, ok := Mean([]float64{1, 2, 3, 4})
	require.True(t, ok)
	require.Equal(t, 2.5, m)

	_, ok = Mean(nil)
	require.False(t, ok)
}

func TestStd(t *testing.T) {
	// mean 3, 偏差平方和 10, ddof=1 で sqrt(2.5)
	s, ok := Std([]float64{1, 2, 3, 4, 5})
	require.True(t, ok)
	require.InDelta(t, 1.5811388300841898, s, 1e-12)

	_, ok = Std([]float64{7})
	require.False(t, ok)
}

func TestMedian(t *testing.T) {
	m, ok := Median([]float64{3, 1, 2})
	require.True(t, ok)
	require.Equal(t, 2.0, m)

	m, ok = Median([]float64{4, 1, 3, 2})
	require.True(t, ok)
	require.Equal(t, 2.5, m)

	_, ok = Median(nil)
	require.False(t, ok)
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	xs := []float64{3, 1, 2}
	_, _ = Median(xs)
	require.Equal(t, []float64{3, 1, 2}, xs)
}

func TestPearson(t *testing.T) {
	r, ok := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.True(t, ok)
	require.InDelta(t, 1.0, r, 1e-12)

	r, ok = Pearson([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.True(t, ok)
	require.InDelta(t, -1.0, r, 1e-12)

	// num=8, da=db=10 で 0.8
	r, ok = Pearson([]float64{1, 2, 3, 4, 5}, []float64{2, 1, 4, 3, 5})
	require.True(t, ok)
	require.InDelta(t, 0.8, r, 1e-12)
}

func TestPearsonDegenerate(t *testing.T) {
	// 分散ゼロ
	_, ok := Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	require.False(t, ok)

	// 長さ不一致
	_, ok = Pearson([]float64{1, 2}, []float64{1, 2, 3})
	require.False(t, ok)

	_, ok = Pearson(nil, nil)
	require.False(t, ok)
}

func TestSpearman(t *testing.T) {
	// 単調なら非線形でも 1
	r, ok := Spearman([]float64{1, 2, 3, 4}, []float64{1, 4, 9, 16})
	require.True(t, ok)
	require.InDelta(t, 1.0, r, 1e-12)

	// タイは平均順位: ranks a={1,2.5,2.5,4} → sqrt(0.9)
	r, ok = Spearman([]float64{1, 2, 2, 3}, []float64{1, 2, 3, 4})
	require.True(t, ok)
	require.InDelta(t, 0.9486832980505138, r, 1e-9)

	_, ok = Spearman([]float64{1}, []float64{1})
	require.False(t, ok)
}

func TestAverageRanks(t *testing.T) {
	require.Equal(t, []float64{3, 1, 2}, AverageRanks([]float64{30, 10, 20}))
	require.Equal(t, []float64{1, 2.5, 2.5, 4}, AverageRanks([]float64{10, 20, 20, 30}))
	require.Equal(t, []float64{2, 2, 2}, AverageRanks([]float64{5, 5, 5}))
}

func TestPercentileRank(t *testing.T) {
	require.Equal(t, []float64{0.25, 0.5, 0.75, 1.0}, PercentileRank([]float64{10, 20, 30, 40}))
	require.Equal(t, []float64{0.375, 0.375, 0.875, 0.875}, PercentileRank([]float64{1, 1, 2, 2}))
}

func TestCosine(t *testing.T) {
	r, ok := Cosine([]float64{1, 2}, []float64{2, 4})
	require.True(t, ok)
	require.InDelta(t, 1.0, r, 1e-12)

	r, ok = Cosine([]float64{1, 0}, []float64{0, 1})
	require.True(t, ok)
	require.InDelta(t, 0.0, r, 1e-12)

	r, ok = Cosine([]float64{1, 2}, []float64{-1, -2})
	require.True(t, ok)
	require.InDelta(t, -1.0, r, 1e-12)

	// ゼロベクトル
	_, ok = Cosine([]float64{0, 0}, []float64{1, 2})
	require.False(t, ok)
}

func TestQuantile(t *testing.T) {
	xs := []float64{1, 2, 3, 4}

	q, ok := Quantile(xs, 0)
	require.True(t, ok)
	require.Equal(t, 1.0, q)

	q, ok = Quantile(xs, 1)
	require.True(t, ok)
	require.Equal(t, 4.0, q)

	// pos = 1.5 → 2 と 3 の中点
	q, ok = Quantile(xs, 0.5)
	require.True(t, ok)
	require.InDelta(t, 2.5, q, 1e-12)

	// pos = 0.75 → 線形補間
	q, ok = Quantile(xs, 0.25)
	require.True(t, ok)
	require.InDelta(t, 1.75, q, 1e-12)

	q, ok = Quantile([]float64{42}, 0.9)
	require.True(t, ok)
	require.Equal(t, 42.0, q)

	_, ok = Quantile(nil, 0.5)
	require.False(t, ok)
	_, ok = Quantile(xs, 1.5)
	require.False(t, ok)
}
