package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/decision"
	"github.com/hmuraoka/kabuto/internal/features"
	"github.com/hmuraoka/kabuto/internal/gates"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/internal/strategyconfig"
	"github.com/hmuraoka/kabuto/internal/watchlist"
)

// RunResult collects everything one run produced.
type RunResult struct {
	RunID           string
	TradeDate       string
	Action          contracts.Action
	Table           *contracts.FeatureTable
	Model           *model.Model
	Report          *contracts.QualityReport
	Watchlist       []contracts.WatchlistEntry
	Card            *contracts.DecisionCard
	Paths           map[string]string
	Delivered       bool
	CompletedStages []contracts.Stage
	Duration        time.Duration
}

// Run executes the full pipeline for one trade date:
// features → model → gates → watchlist → decision → notify.
// A stage failure closes the ledger entry as failed and produces no
// decision card. TRADE never comes out of an incomplete run.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := time.Now()

	asOf := orNowJST(opts.AsOf)

	if opts.Refresh && r.st != nil && r.bars != nil {
		if _, err := r.Ingest(ctx, time.Time{}, asOf); err != nil {
			// The store may still hold enough history to run on.
			r.log.WithError(err).Warn("Refresh failed, running on stored data")
		}
	}

	in, err := r.LoadInputs(ctx, asOf)
	if err != nil {
		return nil, err
	}

	runID := newRunID(start)
	td := in.TradeDate
	tdStr := td.Format("2006-01-02")

	result := &RunResult{
		RunID:     runID,
		TradeDate: tdStr,
	}

	r.log.WithFields(map[string]interface{}{
		"run_id":     runID,
		"trade_date": tdStr,
		"cutoff":     in.Cutoff.Format("2006-01-02"),
		"codes":      len(in.Bars),
		"events":     len(in.Events),
	}).Info("Starting pipeline run")

	if r.st != nil {
		lock, err := r.st.AcquireRunLock(ctx, tdStr)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				r.log.WithError(err).Warn("Failed to release run lock")
			}
		}()
	}

	rec := &contracts.RunRecord{
		RunID:     runID,
		TradeDate: tdStr,
		Status:    contracts.RunRunning,
		StartedAt: start.UTC(),
	}
	if r.st != nil {
		if err := r.st.Runs.Start(ctx, rec); err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}

	// Stage 1: features
	r.emit(runID, td, contracts.StageFeatures, contracts.ProgressStarted, "")
	table, err := features.NewBuilder(r.log).Build(ctx, in.Bars, in.Events, in.Cutoff)
	if err != nil {
		return result, r.fail(rec, td, contracts.StageFeatures, fmt.Errorf("features failed: %w", err))
	}
	result.Table = table
	r.emit(runID, td, contracts.StageFeatures, contracts.ProgressCompleted,
		fmt.Sprintf("%d rows, %d codes", len(table.Rows), len(in.Bars)))
	result.CompletedStages = append(result.CompletedStages, contracts.StageFeatures)

	// Stage 2: model. A failed fit is not fatal: the gates refit per
	// fold themselves and the rotation degrades to zero scores, which
	// the gate verdict makes irrelevant.
	r.emit(runID, td, contracts.StageModel, contracts.ProgressStarted, "")
	m, ds := r.runModel(in, table)
	result.Model = m
	detail := "no usable model"
	if m != nil {
		detail = fmt.Sprintf("%s on %d rows, train ic %.4f", m.Type, m.TrainRows, m.TrainIC)
	}
	r.emit(runID, td, contracts.StageModel, contracts.ProgressCompleted, detail)
	result.CompletedStages = append(result.CompletedStages, contracts.StageModel)

	// Stage 3: gates
	r.emit(runID, td, contracts.StageGates, contracts.ProgressStarted, "")
	rep := gates.NewEngine(r.log, modelConfig(r.strategy), gatesConfig(r.strategy)).Run(table, ds, in.Cutoff)
	rep.TradeDate = tdStr
	rep.RunID = runID
	result.Report = rep
	detail = "all passed"
	if !rep.AllPassed {
		detail = fmt.Sprintf("%d reasons", len(rep.Reasons))
	}
	r.emit(runID, td, contracts.StageGates, contracts.ProgressCompleted, detail)
	result.CompletedStages = append(result.CompletedStages, contracts.StageGates)

	// Stage 4: watchlist
	r.emit(runID, td, contracts.StageWatchlist, contracts.ProgressStarted, "")
	entries, err := r.runWatchlist(ctx, in, table, m, tdStr)
	if err != nil {
		return result, r.fail(rec, td, contracts.StageWatchlist, fmt.Errorf("watchlist failed: %w", err))
	}
	result.Watchlist = entries
	r.emit(runID, td, contracts.StageWatchlist, contracts.ProgressCompleted,
		fmt.Sprintf("%d entries", len(entries)))
	result.CompletedStages = append(result.CompletedStages, contracts.StageWatchlist)

	// Stage 5: decision
	r.emit(runID, td, contracts.StageDecision, contracts.ProgressStarted, "")
	card, paths, err := r.runDecision(in, runID, rep, entries, table)
	if err != nil {
		return result, r.fail(rec, td, contracts.StageDecision, fmt.Errorf("decision failed: %w", err))
	}
	result.Card = card
	result.Paths = paths
	result.Action = card.Action
	r.emit(runID, td, contracts.StageDecision, contracts.ProgressCompleted,
		fmt.Sprintf("%s, %d artifacts", card.Action, len(paths)))
	result.CompletedStages = append(result.CompletedStages, contracts.StageDecision)

	// Stage 6: notify. Delivery is best-effort and never fails the run.
	r.emit(runID, td, contracts.StageNotify, contracts.ProgressStarted, "")
	result.Delivered = r.runNotify(ctx, card)
	detail = "fallback written"
	if result.Delivered {
		detail = "delivered"
	}
	r.emit(runID, td, contracts.StageNotify, contracts.ProgressCompleted, detail)
	result.CompletedStages = append(result.CompletedStages, contracts.StageNotify)

	now := time.Now().UTC()
	rec.Status = contracts.RunCompleted
	rec.Action = card.Action
	rec.FinishedAt = &now
	if err := r.finishLedger(rec, card, rep); err != nil {
		return result, fmt.Errorf("record run completion: %w", err)
	}

	result.Duration = time.Since(start)
	r.log.WithFields(map[string]interface{}{
		"run_id":     runID,
		"trade_date": tdStr,
		"action":     string(card.Action),
		"delivered":  result.Delivered,
		"elapsed_ms": result.Duration.Milliseconds(),
	}).Info("Pipeline run completed")

	return result, nil
}

func (r *Runner) runModel(in *Inputs, table *contracts.FeatureTable) (*model.Model, *model.Dataset) {
	cfg := modelConfig(r.strategy)
	labels := model.ForwardReturns(in.Bars, cfg.HorizonDays)
	ds := model.NewDataset(table, labels, cfg.Features)

	m, err := model.Train(ds, cfg)
	if err != nil {
		r.log.WithError(err).Warn("Model training failed, scoring without coefficients")
		return nil, ds
	}
	return m, ds
}

func (r *Runner) runWatchlist(ctx context.Context, in *Inputs, table *contracts.FeatureTable, m *model.Model, tdStr string) ([]contracts.WatchlistEntry, error) {
	var coef map[string]float64
	if m != nil {
		coef = m.CoefMap()
	}
	names := r.fetchNames(ctx)

	entries := watchlist.NewRotator(r.log, watchlistConfig(r.strategy)).Build(table, in.Cutoff, coef, in.Prior, names)

	if r.st != nil {
		if err := r.st.Watchlists.Save(ctx, tdStr, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *Runner) runDecision(in *Inputs, runID string, rep *contracts.QualityReport, entries []contracts.WatchlistEntry, table *contracts.FeatureTable) (*contracts.DecisionCard, map[string]string, error) {
	card := decision.NewBuilder(r.log).BuildCard(rep, entries)

	manifest, err := buildManifest(runID, card.TradeDate, r.strategy, in)
	if err != nil {
		return nil, nil, err
	}

	outDir := filepath.Join(r.outBase, card.TradeDate)
	paths, err := decision.NewWriter(r.log, outDir).WriteAll(card, rep, entries, table, manifest)
	if err != nil {
		return nil, nil, err
	}
	return card, paths, nil
}

func (r *Runner) runNotify(ctx context.Context, card *contracts.DecisionCard) bool {
	if r.notifier == nil {
		return false
	}
	return r.notifier.Send(ctx, card, filepath.Join(r.outBase, card.TradeDate))
}

// fail closes the ledger entry and mirrors the failure onto the
// progress feed.
func (r *Runner) fail(rec *contracts.RunRecord, td time.Time, stage contracts.Stage, err error) error {
	r.emit(rec.RunID, td, stage, contracts.ProgressFailed, err.Error())

	now := time.Now().UTC()
	rec.Status = contracts.RunFailed
	rec.Error = err.Error()
	rec.FinishedAt = &now
	if ferr := r.finishLedger(rec, nil, nil); ferr != nil {
		r.log.WithError(ferr).Error("Failed to record run failure")
	}
	return err
}

// finishLedger writes the final ledger state. It runs on a detached
// context so a canceled run still gets recorded.
func (r *Runner) finishLedger(rec *contracts.RunRecord, card *contracts.DecisionCard, rep *contracts.QualityReport) error {
	if r.st == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.st.Runs.Finish(ctx, rec, card, rep)
}

func modelConfig(s *strategyconfig.Config) model.Config {
	return model.Config{
		Type:        s.Model.Type,
		Alpha:       s.Model.Alpha,
		L1Ratio:     s.Model.L1Ratio,
		HorizonDays: s.Model.HorizonDays,
		Features:    s.Model.Features,
	}
}

func gatesConfig(s *strategyconfig.Config) gates.Config {
	return gates.Config{
		WFICThreshold:      s.Gates.WFICThreshold,
		WFFolds:            s.Gates.WFFolds,
		TickerCVThreshold:  s.Gates.TickerCVThreshold,
		TickerCVFolds:      s.Gates.TickerCVFolds,
		StabilityThreshold: s.Gates.StabilityThreshold,
		LeakCorrLimit:      s.Gates.LeakCorrLimit,
		MaxMissingRate:     s.Gates.MaxMissingRate,
		MinEligible:        s.Gates.MinEligible,
		ConfidenceFloor:    s.Gates.ConfidenceFloor,
	}
}

func watchlistConfig(s *strategyconfig.Config) watchlist.Config {
	return watchlist.Config{
		Size:            s.Watchlist.Size,
		MaxNew:          s.Watchlist.MaxNew,
		MinRetained:     s.Watchlist.MinRetained,
		Slack:           s.Watchlist.Slack,
		TurnoverPenalty: s.Watchlist.TurnoverPenalty,
		SignalFeatures:  s.Watchlist.SignalFeatures,
		Multipliers: map[string]float64{
			contracts.RegimeRiskOn:  s.Watchlist.RegimeMultipliers.RiskOn,
			contracts.RegimeRiskOff: s.Watchlist.RegimeMultipliers.RiskOff,
		},
	}
}
