package features

import (
	"math"
	"sort"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// rowRef addresses one row of one frame during the per-date pass.
type rowRef struct {
	f *frame
	i int
}

// crossSectionCols are written only by the per-date pass.
var crossSectionCols = []string{
	"liq_score", "vol_z_20d", "vol_z_60d",
	"market_ret_20d", "market_ret_60d", "rs_20d", "rs_60d",
	"earnings_quality_z",
}

// applyCrossSection runs the per-date pass over all frames and returns
// the per-date regime projection. It must run after every frame holds
// its complete per-instrument columns; the result is independent of
// frame order.
func applyCrossSection(frames []*frame) map[time.Time]string {
	byDate := make(map[time.Time][]rowRef)
	for _, f := range frames {
		for _, col := range crossSectionCols {
			f.set(col, nanSlice(f.n()))
		}
		for i, d := range f.dates {
			byDate[d] = append(byDate[d], rowRef{f, i})
		}
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	marketRet := make(map[time.Time]float64, len(dates))
	marketVol := make(map[time.Time]float64, len(dates))
	for _, d := range dates {
		rows := byDate[d]
		csRank(rows, "avg_traded_value_20d", "liq_score")
		csZScore(rows, "vol_20", "vol_z_20d")
		csZScore(rows, "vol_60", "vol_z_60d")
		marketRet[d] = csMeanBroadcast(rows, "ret_20d", "market_ret_20d")
		csMeanBroadcast(rows, "ret_60d", "market_ret_60d")
		csSubtract(rows, "ret_20d", "market_ret_20d", "rs_20d")
		csSubtract(rows, "ret_60d", "market_ret_60d", "rs_60d")
		marketVol[d] = csMedian(rows, "vol_20")
	}

	// Regime reference: median across dates of the per-date vol medians.
	var volMedians []float64
	for _, d := range dates {
		if v := marketVol[d]; !math.IsNaN(v) {
			volMedians = append(volMedians, v)
		}
	}
	globalVol, haveGlobal := stats.Median(volMedians)

	regimes := make(map[time.Time]string, len(dates))
	for _, d := range dates {
		mret, mvol := marketRet[d], marketVol[d]
		label := contracts.RegimeRiskOff
		if haveGlobal && !math.IsNaN(mret) && !math.IsNaN(mvol) &&
			mret >= 0 && mvol <= globalVol {
			label = contracts.RegimeRiskOn
		}
		regimes[d] = label
	}

	// Earnings quality: composite per row, then z-scored per date.
	const eqRaw = "_eq_raw"
	for _, f := range frames {
		raw := nanSlice(f.n())
		react := f.cols["earnings_react_1d"]
		drift := f.cols["earnings_drift_5d"]
		for i := range raw {
			if !math.IsNaN(react[i]) && !math.IsNaN(drift[i]) {
				raw[i] = 0.6*react[i] + 0.4*drift[i]
			}
		}
		f.set(eqRaw, raw)
	}
	for _, d := range dates {
		csZScore(byDate[d], eqRaw, "earnings_quality_z")
	}
	for _, f := range frames {
		delete(f.cols, eqRaw)
	}

	return regimes
}

// eligible collects the non-missing source values of one date together
// with their row positions.
func eligible(rows []rowRef, src string) ([]float64, []int) {
	vals := make([]float64, 0, len(rows))
	idxs := make([]int, 0, len(rows))
	for k, r := range rows {
		if v := r.f.cols[src][r.i]; !math.IsNaN(v) {
			vals = append(vals, v)
			idxs = append(idxs, k)
		}
	}
	return vals, idxs
}

// csRank writes the percentile rank (average tie method) of src into
// dst for every eligible row.
func csRank(rows []rowRef, src, dst string) {
	vals, idxs := eligible(rows, src)
	if len(vals) == 0 {
		return
	}
	pct := stats.PercentileRank(vals)
	for j, k := range idxs {
		r := rows[k]
		r.f.cols[dst][r.i] = pct[j]
	}
}

// csZScore writes the cross-sectional z-score of src into dst. When
// the standard deviation is zero or cannot be computed, every eligible
// row keeps a missing value and is flagged cs_std_zero.
func csZScore(rows []rowRef, src, dst string) {
	vals, idxs := eligible(rows, src)
	if len(vals) == 0 {
		return
	}
	sd, ok := stats.Std(vals)
	if !ok || sd == 0 {
		for _, k := range idxs {
			rows[k].f.addFlag(rows[k].i, contracts.FlagCSStdZero)
		}
		return
	}
	mu, _ := stats.Mean(vals)
	for j, k := range idxs {
		r := rows[k]
		r.f.cols[dst][r.i] = (vals[j] - mu) / sd
	}
}

// csMeanBroadcast writes the mean of the eligible src values to dst on
// every row of the date and returns it. Rows whose own src value is
// missing still receive the broadcast market value.
func csMeanBroadcast(rows []rowRef, src, dst string) float64 {
	vals, _ := eligible(rows, src)
	mu, ok := stats.Mean(vals)
	if !ok {
		return math.NaN()
	}
	for _, r := range rows {
		r.f.cols[dst][r.i] = mu
	}
	return mu
}

// csSubtract writes own - market into dst where both are present.
func csSubtract(rows []rowRef, own, market, dst string) {
	for _, r := range rows {
		o := r.f.cols[own][r.i]
		m := r.f.cols[market][r.i]
		if !math.IsNaN(o) && !math.IsNaN(m) {
			r.f.cols[dst][r.i] = o - m
		}
	}
}

// csMedian returns the median of the eligible src values, NaN if none.
func csMedian(rows []rowRef, src string) float64 {
	vals, _ := eligible(rows, src)
	med, ok := stats.Median(vals)
	if !ok {
		return math.NaN()
	}
	return med
}
