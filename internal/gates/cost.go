package gates

import (
	"fmt"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// The two fixed cost levels, in basis points per trade.
var costLevels = []int{5, 15}

// topDecileQuantile selects the daily long bucket.
const topDecileQuantile = 0.90

// minRowsPerCostDay skips thin dates whose decile would be noise.
const minRowsPerCostDay = 5

// costGates simulates a long-top-decile strategy and checks that the
// summed net return stays positive after a per-trade cost. Both cost
// levels reuse one in-sample fit; only the subtracted cost differs.
func (e *Engine) costGates(d *model.Dataset) map[string]contracts.GateResult {
	out := make(map[string]contracts.GateResult, len(costLevels))

	m, err := model.Train(d, e.modelCfg)
	if err != nil {
		for _, bps := range costLevels {
			name := costGateName(bps)
			out[name] = contracts.GateResult{
				Name:   name,
				Reason: fmt.Sprintf("model fit failed for cost test: %v", err),
			}
		}
		return out
	}
	preds := m.PredictAll(d)

	// Group predictions and realized returns by date. Dates are summed
	// in ascending order so the float accumulation is reproducible.
	type dayRows struct {
		preds  []float64
		labels []float64
	}
	byDate := make(map[time.Time]*dayRows)
	for i, r := range d.Rows {
		g, ok := byDate[r.Date]
		if !ok {
			g = &dayRows{}
			byDate[r.Date] = g
		}
		g.preds = append(g.preds, preds[i])
		g.labels = append(g.labels, d.Y[i])
	}
	dates := d.UniqueDates()

	for _, bps := range costLevels {
		cost := float64(bps) / 10000.0
		var cum float64
		var nDays int
		for _, dt := range dates {
			g := byDate[dt]
			if len(g.preds) < minRowsPerCostDay {
				continue
			}
			q90, ok := stats.Quantile(g.preds, topDecileQuantile)
			if !ok {
				continue
			}
			var gross float64
			var nTop int
			for i, p := range g.preds {
				if p >= q90 {
					gross += g.labels[i]
					nTop++
				}
			}
			if nTop == 0 {
				continue
			}
			cum += gross/float64(nTop) - cost
			nDays++
		}

		name := costGateName(bps)
		res := contracts.GateResult{
			Name:   name,
			Metric: round6(cum),
			Passed: cum > 0,
			Details: map[string]float64{
				"cost_bps": float64(bps),
				"n_days":   float64(nDays),
			},
		}
		if !res.Passed {
			res.Reason = fmt.Sprintf("net return %.4f <= 0 at %dbps cost", cum, bps)
		}
		out[name] = res
	}
	return out
}

func costGateName(bps int) string {
	return fmt.Sprintf("cost_%dbps", bps)
}
