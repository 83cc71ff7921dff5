package features

import (
	"math"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// buildTickerFrame computes every per-instrument series for one code.
// bars must be ascending by date and already trimmed to the cutoff.
func buildTickerFrame(code string, bars []*contracts.Bar) *frame {
	f := newFrame(code, bars)
	f.applyHygieneFlags()

	for _, h := range []struct {
		n   int
		col string
	}{
		{1, "ret_1d"}, {3, "ret_3d"}, {5, "ret_5d"}, {20, "ret_20d"}, {60, "ret_60d"},
	} {
		f.set(h.col, f.pctChange(h.n))
	}
	f.set("absret_1d", absOf(f.cols["ret_1d"]))

	f.set("hh_20d", f.priorMax(20))
	f.set("volume_z_20d", f.volumeZ(20))

	f.set("vol_20", f.rollStd(f.cols["ret_1d"], 20))
	f.set("vol_60", f.rollStd(f.cols["ret_1d"], 60))

	f.buildGapAndShape()

	f.set("trend_20d", cloneCol(f.cols["ret_20d"]))
	f.set("trend_60d", cloneCol(f.cols["ret_60d"]))
	f.set("up_streak_3", f.upStreak())

	tv := make([]float64, f.n())
	for i := range tv {
		tv[i] = f.closePx[i] * f.volume[i] // NaN propagates
	}
	f.set("avg_traded_value_20d", f.rollMean(tv, 20))

	return f
}

// applyHygieneFlags records the row-level data quality flags before any
// derived feature is computed.
func (f *frame) applyHygieneFlags() {
	for i := 0; i < f.n(); i++ {
		if math.IsNaN(f.price[i]) {
			f.addFlag(i, contracts.FlagMissingPrice)
		}
		if math.IsNaN(f.volume[i]) {
			f.addFlag(i, contracts.FlagMissingVolume)
		}
		if math.IsNaN(f.open[i]) || math.IsNaN(f.high[i]) || math.IsNaN(f.low[i]) || math.IsNaN(f.closePx[i]) {
			f.addFlag(i, contracts.FlagMissingOHLC)
		}
		if !math.IsNaN(f.high[i]) && !math.IsNaN(f.low[i]) {
			switch r := f.high[i] - f.low[i]; {
			case r == 0:
				f.addFlag(i, contracts.FlagZeroRange)
			case r < 0:
				f.addFlag(i, contracts.FlagNegativeRange)
			}
		}
		if f.suspended[i] {
			f.addFlag(i, contracts.FlagSuspended)
		}
	}
}

// pctChange returns the h-session simple return of the price series.
// An incomplete window flags insufficient_history_<h>; a non-positive
// reference price suppresses the value with nonpositive_prev_close.
func (f *frame) pctChange(h int) []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(h)
	for i := range out {
		if i < h || math.IsNaN(f.price[i]) || math.IsNaN(f.price[i-h]) {
			f.addFlag(i, histFlag)
			continue
		}
		ref := f.price[i-h]
		if ref <= 0 {
			f.addFlag(i, contracts.FlagNonposPrev)
			continue
		}
		out[i] = (f.price[i] - ref) / ref
	}
	return out
}

// priorMax is the rolling max of price over the w sessions strictly
// before each row. The current day is excluded so the value can serve
// as a breakout reference.
func (f *frame) priorMax(w int) []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(w)
	for i := range out {
		if i < w {
			f.addFlag(i, histFlag)
			continue
		}
		m := math.Inf(-1)
		complete := true
		for j := i - w; j < i; j++ {
			if math.IsNaN(f.price[j]) {
				complete = false
				break
			}
			if f.price[j] > m {
				m = f.price[j]
			}
		}
		if !complete {
			f.addFlag(i, histFlag)
			continue
		}
		out[i] = m
	}
	return out
}

// window returns vals[i-w+1 .. i] when fully observed.
func window(vals []float64, w, i int) ([]float64, bool) {
	if i < w-1 {
		return nil, false
	}
	win := vals[i-w+1 : i+1]
	for _, v := range win {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	return win, true
}

// volumeZ computes (volume - mean_w) / std_w over trailing volumes.
// A zero standard deviation suppresses the value with volume_std_zero.
func (f *frame) volumeZ(w int) []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(w)
	for i := range out {
		win, ok := window(f.volume, w, i)
		if !ok {
			f.addFlag(i, histFlag)
			continue
		}
		sd, _ := stats.Std(win)
		if sd == 0 {
			f.addFlag(i, contracts.FlagVolumeStdZero)
			continue
		}
		mu, _ := stats.Mean(win)
		out[i] = (f.volume[i] - mu) / sd
	}
	return out
}

// rollStd is the trailing sample standard deviation over full windows.
func (f *frame) rollStd(vals []float64, w int) []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(w)
	for i := range out {
		win, ok := window(vals, w, i)
		if !ok {
			f.addFlag(i, histFlag)
			continue
		}
		sd, _ := stats.Std(win)
		out[i] = sd
	}
	return out
}

// rollMean is the trailing mean over full windows.
func (f *frame) rollMean(vals []float64, w int) []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(w)
	for i := range out {
		win, ok := window(vals, w, i)
		if !ok {
			f.addFlag(i, histFlag)
			continue
		}
		mu, _ := stats.Mean(win)
		out[i] = mu
	}
	return out
}

// buildGapAndShape computes prev_close, gap_1d, range and the two
// close-position ratios.
func (f *frame) buildGapAndShape() {
	n := f.n()
	prev := nanSlice(n)
	gap := nanSlice(n)
	rng := nanSlice(n)
	cth := nanSlice(n)
	cpr := nanSlice(n)

	hist1 := contracts.InsufficientHistoryFlag(1)
	for i := 0; i < n; i++ {
		if i == 0 || math.IsNaN(f.price[i-1]) {
			f.addFlag(i, hist1)
		} else {
			prev[i] = f.price[i-1]
		}

		if !math.IsNaN(prev[i]) {
			if prev[i] <= 0 {
				f.addFlag(i, contracts.FlagNonposPrev)
			} else if !math.IsNaN(f.open[i]) {
				gap[i] = (f.open[i] - prev[i]) / prev[i]
			}
		}

		if !math.IsNaN(f.high[i]) && !math.IsNaN(f.low[i]) {
			r := f.high[i] - f.low[i]
			rng[i] = r
			// zero_range / negative_range flags are set by the hygiene pass
			if r > 0 && !math.IsNaN(f.closePx[i]) {
				cth[i] = (f.closePx[i] - f.high[i]) / r
				cpr[i] = (f.closePx[i] - f.low[i]) / r
			}
		}
	}

	f.set("prev_close", prev)
	f.set("gap_1d", gap)
	f.set("range", rng)
	f.set("close_to_high_1d", cth)
	f.set("close_pos_in_range_1d", cpr)
}

// upStreak marks sessions where price rose three sessions in a row.
// The value is binary; rows without three fully observed prior prices
// stay missing.
func (f *frame) upStreak() []float64 {
	out := nanSlice(f.n())
	histFlag := contracts.InsufficientHistoryFlag(3)
	for i := range out {
		if i < 3 || math.IsNaN(f.price[i]) || math.IsNaN(f.price[i-1]) ||
			math.IsNaN(f.price[i-2]) || math.IsNaN(f.price[i-3]) {
			f.addFlag(i, histFlag)
			continue
		}
		if f.price[i] > f.price[i-1] && f.price[i-1] > f.price[i-2] && f.price[i-2] > f.price[i-3] {
			out[i] = 1.0
		} else {
			out[i] = 0.0
		}
	}
	return out
}

func absOf(vals []float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = math.Abs(v) // NaN stays NaN
	}
	return out
}

func cloneCol(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	return out
}
