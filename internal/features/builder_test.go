package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func fp(v float64) *float64 { return &v }

func bar(code string, d time.Time, o, h, l, c, v float64) *contracts.Bar {
	return &contracts.Bar{
		Date: d, Code: code,
		Open: fp(o), High: fp(h), Low: fp(l), Close: fp(c), Volume: fp(v),
	}
}

// closeBars builds bars where only close and volume carry information.
func closeBars(code string, closes []float64, volume float64) []*contracts.Bar {
	out := make([]*contracts.Bar, len(closes))
	for i, c := range closes {
		out[i] = bar(code, day(i), c, c*1.01, c*0.99, c, volume)
	}
	return out
}

// geomCloses is a geometric price path with a constant daily return.
func geomCloses(n int, start, dailyRet float64) []float64 {
	out := make([]float64, n)
	p := start
	for i := range out {
		out[i] = p
		p *= 1 + dailyRet
	}
	return out
}

func buildTable(t *testing.T, bars map[string][]*contracts.Bar, events []contracts.Event, cutoff time.Time) *contracts.FeatureTable {
	t.Helper()
	b := NewBuilder(logger.Nop())
	table, err := b.Build(context.Background(), bars, events, cutoff)
	require.NoError(t, err)
	return table
}

func rowFor(t *testing.T, table *contracts.FeatureTable, code string, d time.Time) *contracts.FeatureRow {
	t.Helper()
	for _, r := range table.Rows {
		if r.Code == code && r.Date.Equal(d) {
			return r
		}
	}
	t.Fatalf("row not found: %s %s", code, d.Format("2006-01-02"))
	return nil
}

func TestBuildEmptyUniverse(t *testing.T) {
	b := NewBuilder(logger.Nop())
	_, err := b.Build(context.Background(), nil, nil, day(10))
	require.Error(t, err)

	_, err = b.Build(context.Background(), map[string][]*contracts.Bar{
		"7203": closeBars("7203", []float64{100, 101}, 1000),
	}, nil, day(-5))
	require.Error(t, err, "cutoff before all bars leaves nothing to build")
}

func TestReturnsAndStreak(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 104, 105, 106, 104}
	bars := map[string][]*contracts.Bar{"7203": closeBars("7203", closes, 1000)}
	table := buildTable(t, bars, nil, day(len(closes)-1))

	r1 := rowFor(t, table, "7203", day(1))
	v, ok := r1.Value("ret_1d")
	require.True(t, ok)
	assert.InDelta(t, 0.02, v, 1e-12)

	r0 := rowFor(t, table, "7203", day(0))
	_, ok = r0.Value("ret_1d")
	assert.False(t, ok, "first row has no prior price")
	assert.True(t, r0.HasFlag(contracts.InsufficientHistoryFlag(1)))

	// 105 > 104 > 103 > 101
	r5 := rowFor(t, table, "7203", day(5))
	v, ok = r5.Value("up_streak_3")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	// 103 > 101 but 101 < 102 breaks the chain
	r3 := rowFor(t, table, "7203", day(3))
	v, ok = r3.Value("up_streak_3")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	r2 := rowFor(t, table, "7203", day(2))
	_, ok = r2.Value("up_streak_3")
	assert.False(t, ok)
	assert.True(t, r2.HasFlag(contracts.InsufficientHistoryFlag(3)))

	v, ok = r3.Value("prev_close")
	require.True(t, ok)
	assert.InDelta(t, 101.0, v, 1e-12)
}

func TestSparseHistory(t *testing.T) {
	// 15 観測では 20 日系の特徴量は全て欠損になる
	bars := map[string][]*contracts.Bar{
		"6501": closeBars("6501", geomCloses(15, 100, 0.01), 1000),
	}
	table := buildTable(t, bars, nil, day(14))

	last := rowFor(t, table, "6501", day(14))
	for _, col := range []string{"ret_20d", "hh_20d", "vol_20", "volume_z_20d", "avg_traded_value_20d", "trend_20d"} {
		_, ok := last.Value(col)
		assert.False(t, ok, "%s should be missing with 15 observations", col)
	}
	assert.True(t, last.HasFlag(contracts.InsufficientHistoryFlag(20)))
	assert.True(t, last.HasFlag(contracts.InsufficientHistoryFlag(60)))

	v, ok := last.Value("ret_5d")
	require.True(t, ok, "5-day window is complete")
	assert.InDelta(t, math.Pow(1.01, 5)-1, v, 1e-9)
}

func TestZeroRangeBar(t *testing.T) {
	bars := []*contracts.Bar{
		bar("9984", day(0), 100, 105, 95, 100, 1000),
		bar("9984", day(1), 100, 100, 100, 100, 1000), // ストップ高貼り付きの形
	}
	table := buildTable(t, bars2map("9984", bars), nil, day(1))

	r := rowFor(t, table, "9984", day(1))
	assert.True(t, r.HasFlag(contracts.FlagZeroRange))
	_, ok := r.Value("close_to_high_1d")
	assert.False(t, ok)
	_, ok = r.Value("close_pos_in_range_1d")
	assert.False(t, ok)
	v, ok := r.Value("range")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestNegativeRangeBar(t *testing.T) {
	bars := []*contracts.Bar{
		bar("9984", day(0), 100, 105, 95, 100, 1000),
		bar("9984", day(1), 100, 95, 105, 100, 1000), // high < low の不正バー
	}
	table := buildTable(t, bars2map("9984", bars), nil, day(1))

	r := rowFor(t, table, "9984", day(1))
	assert.True(t, r.HasFlag(contracts.FlagNegativeRange))
	_, ok := r.Value("close_to_high_1d")
	assert.False(t, ok)

	// 不正バーが他の行や銘柄を巻き込まないこと
	r0 := rowFor(t, table, "9984", day(0))
	assert.False(t, r0.HasFlag(contracts.FlagNegativeRange))
}

func TestNonpositivePrevClose(t *testing.T) {
	bars := []*contracts.Bar{
		bar("1111", day(0), 1, 1.1, 0.9, 0, 1000), // terminal close of zero
		bar("1111", day(1), 1, 1.1, 0.9, 1, 1000),
	}
	table := buildTable(t, bars2map("1111", bars), nil, day(1))

	r := rowFor(t, table, "1111", day(1))
	assert.True(t, r.HasFlag(contracts.FlagNonposPrev))
	_, ok := r.Value("gap_1d")
	assert.False(t, ok)
	_, ok = r.Value("ret_1d")
	assert.False(t, ok)
}

func TestVolumeStdZero(t *testing.T) {
	bars := map[string][]*contracts.Bar{
		"4502": closeBars("4502", geomCloses(25, 100, 0.005), 777), // 出来高一定
	}
	table := buildTable(t, bars, nil, day(24))

	r := rowFor(t, table, "4502", day(24))
	_, ok := r.Value("volume_z_20d")
	assert.False(t, ok)
	assert.True(t, r.HasFlag(contracts.FlagVolumeStdZero))

	// 出来高一定でも売買代金の平均は計算できる
	v, ok := r.Value("avg_traded_value_20d")
	require.True(t, ok)
	assert.Greater(t, v, 0.0)
}

func TestGapComputation(t *testing.T) {
	bars := []*contracts.Bar{
		bar("8306", day(0), 100, 101, 99, 100, 1000),
		bar("8306", day(1), 104, 106, 103, 105, 1000),
	}
	table := buildTable(t, bars2map("8306", bars), nil, day(1))

	r := rowFor(t, table, "8306", day(1))
	v, ok := r.Value("gap_1d")
	require.True(t, ok)
	assert.InDelta(t, 0.04, v, 1e-12)

	v, ok = r.Value("close_to_high_1d")
	require.True(t, ok)
	assert.InDelta(t, (105.0-106.0)/3.0, v, 1e-12)

	v, ok = r.Value("close_pos_in_range_1d")
	require.True(t, ok)
	assert.InDelta(t, (105.0-103.0)/3.0, v, 1e-12)
}

func TestCrossSection(t *testing.T) {
	n := 25
	bars := map[string][]*contracts.Bar{
		"1301": closeBars("1301", geomCloses(n, 100, 0.01), 1000),
		"1302": closeBars("1302", geomCloses(n, 200, 0.02), 2000),
		"1303": closeBars("1303", geomCloses(n, 300, 0.03), 3000),
	}
	table := buildTable(t, bars, nil, day(n-1))
	last := day(n - 1)

	// 売買代金: 1301 < 1302 < 1303 → 順位は 1/3, 2/3, 3/3
	wantRank := map[string]float64{"1301": 1.0 / 3.0, "1302": 2.0 / 3.0, "1303": 1.0}
	for code, want := range wantRank {
		r := rowFor(t, table, code, last)
		v, ok := r.Value("liq_score")
		require.True(t, ok, "%s liq_score", code)
		assert.InDelta(t, want, v, 1e-12, "%s", code)
	}

	// rs は自身のリターンから市場平均を引いたもの。合計はゼロになる
	var sumRS float64
	var market float64
	for _, code := range []string{"1301", "1302", "1303"} {
		r := rowFor(t, table, code, last)
		rs, ok := r.Value("rs_20d")
		require.True(t, ok)
		sumRS += rs
		m, ok := r.Value("market_ret_20d")
		require.True(t, ok)
		market = m
	}
	assert.InDelta(t, 0.0, sumRS, 1e-9)

	wantMarket := (math.Pow(1.01, 20) + math.Pow(1.02, 20) + math.Pow(1.03, 20) - 3) / 3
	assert.InDelta(t, wantMarket, market, 1e-9)

	// 一定日次リターンなので vol_20 は銘柄内でゼロ、横断面の分散もゼロ
	r := rowFor(t, table, "1302", last)
	_, ok := r.Value("vol_z_20d")
	assert.False(t, ok)
	assert.True(t, r.HasFlag(contracts.FlagCSStdZero))
}

func TestRegimeLabels(t *testing.T) {
	n := 25

	rising := map[string][]*contracts.Bar{
		"2801": closeBars("2801", geomCloses(n, 100, 0.01), 1000),
		"2802": closeBars("2802", geomCloses(n, 150, 0.01), 1500),
	}
	table := buildTable(t, rising, nil, day(n-1))
	require.Equal(t, contracts.RegimeRiskOn, table.Regimes[day(n-1)],
		"positive market return with flat volatility must be risk_on")
	require.Equal(t, contracts.RegimeRiskOff, table.Regimes[day(0)],
		"dates without full return windows fall back to risk_off")
	for _, r := range table.Rows {
		assert.Equal(t, table.Regimes[r.Date], r.Regime)
	}

	falling := map[string][]*contracts.Bar{
		"2801": closeBars("2801", geomCloses(n, 100, -0.01), 1000),
		"2802": closeBars("2802", geomCloses(n, 150, -0.01), 1500),
	}
	table = buildTable(t, falling, nil, day(n-1))
	assert.Equal(t, contracts.RegimeRiskOff, table.Regimes[day(n-1)],
		"negative market return must be risk_off")
}

func TestEventFeatures(t *testing.T) {
	closes := []float64{100, 101, 104, 103, 105, 106, 107, 108, 109, 110}
	bars := map[string][]*contracts.Bar{"6758": closeBars("6758", closes, 1000)}
	events := []contracts.Event{
		{Code: "6758", Date: day(2), Type: contracts.EventEarnings},
		{Code: "6758", Date: day(0), Type: contracts.EventBullish},
		{Code: "6758", Date: day(5), Type: contracts.EventBullish},
		{Code: "6758", Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), Type: contracts.EventEarnings}, // 履歴外
	}
	table := buildTable(t, bars, events, day(len(closes)-1))

	wantReact := (104.0 - 101.0) / 101.0
	r2 := rowFor(t, table, "6758", day(2))
	v, ok := r2.Value("earnings_react_1d")
	require.True(t, ok)
	assert.InDelta(t, wantReact, v, 1e-12)

	// 反応はその後の営業日に引き継がれる
	r9 := rowFor(t, table, "6758", day(9))
	v, ok = r9.Value("earnings_react_1d")
	require.True(t, ok)
	assert.InDelta(t, wantReact, v, 1e-12)

	// イベント前は欠損
	r1 := rowFor(t, table, "6758", day(1))
	_, ok = r1.Value("earnings_react_1d")
	assert.False(t, ok)
	assert.True(t, r1.HasFlag(contracts.FlagNoRecentEvent))

	// ドリフトはイベント行にのみ載る
	v, ok = r2.Value("earnings_drift_5d")
	require.True(t, ok)
	assert.InDelta(t, (108.0-104.0)/104.0, v, 1e-12)
	_, ok = r9.Value("earnings_drift_5d")
	assert.False(t, ok)
	assert.False(t, r2.HasFlag(contracts.FlagNoRecentEvent),
		"the event row itself has both event features")

	// 60 日窓の強気イベント数
	r5 := rowFor(t, table, "6758", day(5))
	v, ok = r5.Value("event_bullish_count_60d")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	r0 := rowFor(t, table, "6758", day(0))
	v, _ = r0.Value("event_bullish_count_60d")
	assert.Equal(t, 1.0, v)
}

func TestNoEventsFlag(t *testing.T) {
	bars := map[string][]*contracts.Bar{
		"6861": closeBars("6861", []float64{100, 101, 102}, 1000),
		"6954": closeBars("6954", []float64{100, 101, 102}, 1000),
	}
	// 6954 は強気イベントのみで決算イベントなし
	events := []contracts.Event{
		{Code: "6861", Date: day(1), Type: contracts.EventEarnings},
		{Code: "6954", Date: day(1), Type: contracts.EventBullish},
	}
	table := buildTable(t, bars, events, day(2))

	assert.False(t, rowFor(t, table, "6861", day(1)).HasFlag(contracts.FlagNoEvents))
	for i := 0; i < 3; i++ {
		assert.True(t, rowFor(t, table, "6954", day(i)).HasFlag(contracts.FlagNoEvents))
	}
	v, ok := rowFor(t, table, "6954", day(2)).Value("event_bullish_count_60d")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	// events 自体が無い場合は全銘柄 no_events
	table = buildTable(t, bars, nil, day(2))
	assert.True(t, rowFor(t, table, "6861", day(0)).HasFlag(contracts.FlagNoEvents))
}

func TestStaleData(t *testing.T) {
	bars := map[string][]*contracts.Bar{
		"3382": closeBars("3382", []float64{100, 101, 102}, 1000),
	}
	table := buildTable(t, bars, nil, day(10)) // 最終バーの8日後

	r := rowFor(t, table, "3382", day(2))
	assert.True(t, r.HasFlag(contracts.FlagStaleData))
	v, ok := r.Value("data_stale_flag")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	fresh := buildTable(t, bars, nil, day(2))
	r = rowFor(t, fresh, "3382", day(2))
	assert.False(t, r.HasFlag(contracts.FlagStaleData))
	v, _ = r.Value("data_stale_flag")
	assert.Equal(t, 0.0, v)
}

func TestCutoffExcludesFutureBars(t *testing.T) {
	bars := map[string][]*contracts.Bar{
		"7974": closeBars("7974", geomCloses(10, 100, 0.01), 1000),
	}
	table := buildTable(t, bars, nil, day(6))

	last, ok := table.LastDate()
	require.True(t, ok)
	assert.True(t, last.Equal(day(6)))
	for _, r := range table.Rows {
		assert.False(t, r.Date.After(day(6)))
	}
}

func TestFlagCompleteness(t *testing.T) {
	// 欠損値を大量に含む混成ユニバースでも、欠損には必ずフラグが付く
	bars := map[string][]*contracts.Bar{
		"5401": closeBars("5401", geomCloses(70, 100, 0.01), 1000),
		"5406": closeBars("5406", geomCloses(15, 50, -0.02), 500),
		"5411": {
			bar("5411", day(0), 100, 100, 100, 100, 1000),
			{Date: day(1), Code: "5411"}, // 全フィールド欠損
		},
	}
	events := []contracts.Event{
		{Code: "5401", Date: day(30), Type: contracts.EventEarnings},
	}
	table := buildTable(t, bars, events, day(69))

	numericCols := 0
	for _, r := range table.Rows {
		for _, col := range ColumnOrder {
			if col == RegimeColumn {
				continue
			}
			numericCols++
			if _, ok := r.Value(col); !ok {
				assert.NotEmpty(t, r.Flags,
					"%s %s: missing %s must carry a flag", r.Code, r.Date.Format("2006-01-02"), col)
			}
		}
	}
	require.Greater(t, numericCols, 0)
}

func TestDeterminism(t *testing.T) {
	bars := map[string][]*contracts.Bar{
		"9101": closeBars("9101", geomCloses(70, 100, 0.012), 1000),
		"9104": closeBars("9104", geomCloses(70, 200, -0.004), 3000),
		"9107": closeBars("9107", geomCloses(40, 150, 0.02), 2000),
	}
	events := []contracts.Event{
		{Code: "9101", Date: day(25), Type: contracts.EventEarnings},
		{Code: "9104", Date: day(40), Type: contracts.EventBullish},
	}

	one := NewBuilder(logger.Nop()).WithWorkers(1)
	many := NewBuilder(logger.Nop()).WithWorkers(8)

	t1, err := one.Build(context.Background(), bars, events, day(69))
	require.NoError(t, err)
	t2, err := many.Build(context.Background(), bars, events, day(69))
	require.NoError(t, err)

	require.Equal(t, len(t1.Rows), len(t2.Rows))
	for i := range t1.Rows {
		assert.Equal(t, t1.Rows[i].Code, t2.Rows[i].Code)
		assert.True(t, t1.Rows[i].Date.Equal(t2.Rows[i].Date))
		assert.Equal(t, t1.Rows[i].Values, t2.Rows[i].Values)
		assert.Equal(t, t1.Rows[i].Flags, t2.Rows[i].Flags)
		assert.Equal(t, t1.Rows[i].Regime, t2.Rows[i].Regime)
	}
	assert.Equal(t, t1.Regimes, t2.Regimes)
}

func bars2map(code string, bars []*contracts.Bar) map[string][]*contracts.Bar {
	return map[string][]*contracts.Bar{code: bars}
}
