package gates

import (
	"fmt"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// tickerSplitCV validates generalization to unseen instruments. Codes
// are dealt into k folds by sorted position (fold = index mod k), so
// the partition is deterministic and needs no random seed. Each fold
// is held out once; the gate statistic is the mean rank IC.
func (e *Engine) tickerSplitCV(d *model.Dataset) contracts.GateResult {
	res := contracts.GateResult{
		Name:      contracts.GateTickerSplitCV,
		Threshold: e.cfg.TickerCVThreshold,
		Details:   map[string]float64{},
	}

	codes := d.UniqueCodes()
	k := e.cfg.TickerCVFolds
	res.Details["instruments"] = float64(len(codes))
	if len(codes) < k {
		res.Reason = fmt.Sprintf("too few instruments (%d) for %d-fold ticker CV", len(codes), k)
		return res
	}

	foldOf := make(map[string]int, len(codes))
	for i, c := range codes {
		foldOf[c] = i % k
	}

	ics := make([]float64, 0, k)
	for f := 0; f < k; f++ {
		train := d.FilterCodes(func(c string) bool { return foldOf[c] != f })
		test := d.FilterCodes(func(c string) bool { return foldOf[c] == f })

		ic := 0.0
		if m, err := model.Train(train, e.modelCfg); err != nil {
			e.log.WithError(err).Warn("Ticker CV fold fit failed")
		} else {
			ic = model.RankIC(m.PredictAll(test), test.Y)
		}
		ics = append(ics, ic)
		res.Details[fmt.Sprintf("fold_%d", f+1)] = round6(ic)
	}

	mean, _ := stats.Mean(ics)
	res.Metric = round6(mean)
	res.Passed = mean > e.cfg.TickerCVThreshold
	if !res.Passed {
		res.Reason = fmt.Sprintf("ticker CV IC %.4f <= threshold %.4f", mean, e.cfg.TickerCVThreshold)
	}
	return res
}
