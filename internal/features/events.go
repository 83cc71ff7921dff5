package features

import (
	"math"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// bullishWindowDays is a calendar-day window, not a session count.
const bullishWindowDays = 60

// applyEventFeatures adds the earnings reaction and drift series and
// the trailing bullish-event count for one instrument. evts holds only
// this instrument's events; an empty slice marks the whole history
// with no_events.
func applyEventFeatures(f *frame, evts []contracts.Event) {
	n := f.n()
	react := nanSlice(n)
	drift := nanSlice(n)

	var earningsDates, bullishDates []time.Time
	seen := make(map[time.Time]struct{})
	for _, e := range evts {
		switch e.Type {
		case contracts.EventEarnings:
			if _, dup := seen[e.Date]; !dup {
				seen[e.Date] = struct{}{}
				earningsDates = append(earningsDates, e.Date)
			}
		case contracts.EventBullish:
			bullishDates = append(bullishDates, e.Date)
		}
	}

	hasEarnings := len(earningsDates) > 0
	if hasEarnings {
		idx := make(map[time.Time]int, n)
		for i, d := range f.dates {
			idx[d] = i
		}
		ret1 := f.cols["ret_1d"]
		for _, ed := range earningsDates {
			i, ok := idx[ed]
			if !ok {
				continue // event on a non-session date
			}
			react[i] = ret1[i]
			if i+5 < n {
				p0, p5 := f.price[i], f.price[i+5]
				if !math.IsNaN(p0) && !math.IsNaN(p5) && p0 > 0 {
					drift[i] = (p5 - p0) / p0
				}
			}
		}
		// Carry the last observed reaction forward to later sessions.
		last := math.NaN()
		for i := range react {
			if !math.IsNaN(react[i]) {
				last = react[i]
			} else {
				react[i] = last
			}
		}
	}

	f.set("earnings_react_1d", react)
	f.set("earnings_drift_5d", drift)

	counts := make([]float64, n)
	if len(bullishDates) > 0 {
		for i, d := range f.dates {
			start := d.AddDate(0, 0, -bullishWindowDays)
			c := 0
			for _, b := range bullishDates {
				if !b.Before(start) && !b.After(d) {
					c++
				}
			}
			counts[i] = float64(c)
		}
	}
	f.set("event_bullish_count_60d", counts)

	if !hasEarnings {
		f.flagAll(contracts.FlagNoEvents)
		return
	}
	for i := range react {
		if math.IsNaN(react[i]) || math.IsNaN(drift[i]) {
			f.addFlag(i, contracts.FlagNoRecentEvent)
		}
	}
}
