package gates

import (
	"fmt"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// minDatesPerHalf guards the stability split against halves too short
// to produce meaningful coefficients.
const minDatesPerHalf = 10

// paramStability refits the estimator on the first and second half of
// the date range and compares the two coefficient vectors by cosine
// similarity. Loadings that flip between halves indicate a fit to
// noise even when the pooled IC looks fine.
func (e *Engine) paramStability(d *model.Dataset) contracts.GateResult {
	res := contracts.GateResult{
		Name:      contracts.GateParamStability,
		Threshold: e.cfg.StabilityThreshold,
		Details:   map[string]float64{},
	}

	dates := d.UniqueDates()
	half := len(dates) / 2
	res.Details["dates_first"] = float64(half)
	res.Details["dates_second"] = float64(len(dates) - half)
	if half < minDatesPerHalf {
		res.Reason = fmt.Sprintf("insufficient data for stability split (%d dates)", len(dates))
		return res
	}

	firstSet := dateSet(dates[:half])
	first := d.FilterDates(func(t time.Time) bool { _, ok := firstSet[t]; return ok })
	second := d.FilterDates(func(t time.Time) bool { _, ok := firstSet[t]; return !ok })

	m1, err := model.Train(first, e.modelCfg)
	if err != nil {
		res.Reason = fmt.Sprintf("first-half fit failed: %v", err)
		return res
	}
	m2, err := model.Train(second, e.modelCfg)
	if err != nil {
		res.Reason = fmt.Sprintf("second-half fit failed: %v", err)
		return res
	}

	cos, ok := stats.Cosine(m1.Coef, m2.Coef)
	if !ok {
		cos = 0
	}
	res.Metric = round6(cos)
	res.Passed = cos > e.cfg.StabilityThreshold
	if !res.Passed {
		res.Reason = fmt.Sprintf("coefficient cosine %.4f <= threshold %.4f", cos, e.cfg.StabilityThreshold)
	}
	return res
}
