package gates

import (
	"fmt"
	"math"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// fold is one walk-forward split: train on everything before the test
// window, validate on the window itself.
type fold struct {
	train []time.Time
	test  []time.Time
}

// foldPlan cuts the date axis into folds+1 equal blocks. Fold k trains
// on blocks 0..k and tests on block k+1, so every test window is
// strictly after its training data and test windows never overlap.
func foldPlan(dates []time.Time, folds int) []fold {
	size := len(dates) / (folds + 1)
	if size == 0 {
		return nil
	}
	out := make([]fold, 0, folds)
	for k := 0; k < folds; k++ {
		trainEnd := (k + 1) * size
		testEnd := (k + 2) * size
		if testEnd > len(dates) {
			testEnd = len(dates)
		}
		if trainEnd >= testEnd {
			break
		}
		out = append(out, fold{train: dates[:trainEnd], test: dates[trainEnd:testEnd]})
	}
	return out
}

// walkForward validates the estimator out of sample along the time
// axis. The gate statistic is the mean rank IC over folds.
func (e *Engine) walkForward(d *model.Dataset) contracts.GateResult {
	res := contracts.GateResult{
		Name:      contracts.GateWalkForward,
		Threshold: e.cfg.WFICThreshold,
		Details:   map[string]float64{},
	}

	dates := d.UniqueDates()
	res.Details["dates"] = float64(len(dates))
	if len(dates) < e.cfg.WFFolds*2 {
		res.Reason = fmt.Sprintf("insufficient data for walk-forward splits (%d dates)", len(dates))
		return res
	}

	plan := foldPlan(dates, e.cfg.WFFolds)
	ics := make([]float64, 0, len(plan))
	for k, f := range plan {
		ic := e.foldIC(d, f)
		ics = append(ics, ic)
		res.Details[fmt.Sprintf("fold_%d", k+1)] = round6(ic)
	}
	res.Details["folds"] = float64(len(ics))

	mean, ok := stats.Mean(ics)
	if !ok {
		res.Reason = "no walk-forward folds could be evaluated"
		return res
	}
	res.Metric = round6(mean)
	res.Passed = mean > e.cfg.WFICThreshold
	if !res.Passed {
		res.Reason = fmt.Sprintf("WF IC %.4f <= threshold %.4f", mean, e.cfg.WFICThreshold)
	}
	return res
}

// foldIC trains on the fold's past and scores its test window. A fold
// whose fit fails scores 0 rather than aborting the gate.
func (e *Engine) foldIC(d *model.Dataset, f fold) float64 {
	trainSet := dateSet(f.train)
	testSet := dateSet(f.test)

	train := d.FilterDates(func(t time.Time) bool { _, ok := trainSet[t]; return ok })
	test := d.FilterDates(func(t time.Time) bool { _, ok := testSet[t]; return ok })

	m, err := model.Train(train, e.modelCfg)
	if err != nil {
		e.log.WithError(err).Warn("Walk-forward fold fit failed")
		return 0
	}
	return model.RankIC(m.PredictAll(test), test.Y)
}

func dateSet(dates []time.Time) map[time.Time]struct{} {
	s := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
