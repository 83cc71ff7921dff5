package pipeline

import (
	"context"
	"time"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/features"
	"github.com/hmuraoka/kabuto/internal/gates"
)

// BuildFeatures assembles inputs as of asOf (zero means now in JST)
// and returns the feature table without touching the ledger or
// writing artifacts.
func (r *Runner) BuildFeatures(ctx context.Context, asOf time.Time) (*contracts.FeatureTable, error) {
	in, err := r.LoadInputs(ctx, orNowJST(asOf))
	if err != nil {
		return nil, err
	}
	return features.NewBuilder(r.log).Build(ctx, in.Bars, in.Events, in.Cutoff)
}

// EvaluateGates runs the feature and model stages and returns the
// quality report for inspection. The report carries the trade date but
// no run id, since no ledger entry is created.
func (r *Runner) EvaluateGates(ctx context.Context, asOf time.Time) (*contracts.QualityReport, error) {
	in, err := r.LoadInputs(ctx, orNowJST(asOf))
	if err != nil {
		return nil, err
	}

	table, err := features.NewBuilder(r.log).Build(ctx, in.Bars, in.Events, in.Cutoff)
	if err != nil {
		return nil, err
	}

	_, ds := r.runModel(in, table)

	rep := gates.NewEngine(r.log, modelConfig(r.strategy), gatesConfig(r.strategy)).Run(table, ds, in.Cutoff)
	rep.TradeDate = in.TradeDate.Format("2006-01-02")
	return rep, nil
}

func orNowJST(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().In(calendar.JST)
	}
	return t
}
