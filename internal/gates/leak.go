package gates

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/stats"
)

// leakDetection is a structural audit rather than a statistical test.
// Three checks run in order and every finding is reported:
//
//  1. Feature rows dated after the cutoff.
//  2. A feature column nearly collinear with the forward label.
//  3. A walk-forward fold whose training window reaches into its test
//     window.
//
// The metric is the raw issue count; zero issues passes.
func (e *Engine) leakDetection(table *contracts.FeatureTable, d *model.Dataset, cutoff time.Time) contracts.GateResult {
	res := contracts.GateResult{
		Name:      contracts.GateLeakDetection,
		Threshold: e.cfg.LeakCorrLimit,
	}

	var issues []string

	if n := countFutureRows(table, cutoff); n > 0 {
		issues = append(issues, fmt.Sprintf("%d rows dated after cutoff %s", n, cutoff.Format("2006-01-02")))
	}

	col := make([]float64, d.Len())
	for j, name := range d.Features {
		for i := range d.X {
			v := d.X[i][j]
			if math.IsNaN(v) {
				v = 0
			}
			col[i] = v
		}
		corr, ok := stats.Pearson(col, d.Y)
		if ok && math.Abs(corr) > e.cfg.LeakCorrLimit {
			issues = append(issues, fmt.Sprintf("feature %s correlates %.4f with forward label", name, corr))
		}
	}

	for k, f := range foldPlan(d.UniqueDates(), e.cfg.WFFolds) {
		maxTrain := f.train[len(f.train)-1]
		minTest := f.test[0]
		if !maxTrain.Before(minTest) {
			issues = append(issues, fmt.Sprintf("fold %d training window overlaps its test window", k+1))
		}
	}

	res.Metric = float64(len(issues))
	res.Passed = len(issues) == 0
	res.Reason = strings.Join(issues, "; ")
	return res
}

func countFutureRows(table *contracts.FeatureTable, cutoff time.Time) int {
	n := 0
	for _, r := range table.Rows {
		if r.Date.After(cutoff) {
			n++
		}
	}
	return n
}
