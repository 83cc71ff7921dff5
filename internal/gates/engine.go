// Package gates evaluates the statistical quality gates that decide
// whether a trading day is tradeable. Every gate is fail-closed: a
// gate that cannot be evaluated (thin history, failed fit) fails with
// a reason instead of being skipped.
package gates

import (
	"fmt"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/model"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// Config holds the gate thresholds and safety floors.
// ⭐ SSOT: ゲート閾値は strategyconfig から渡されるこの形だけ
type Config struct {
	WFICThreshold      float64
	WFFolds            int
	TickerCVThreshold  float64
	TickerCVFolds      int
	StabilityThreshold float64
	LeakCorrLimit      float64
	MaxMissingRate     float64
	MinEligible        int
	ConfidenceFloor    float64
}

// Engine runs the six gates against one labeled dataset.
type Engine struct {
	log      *logger.Logger
	modelCfg model.Config
	cfg      Config
}

// NewEngine binds the engine to a model configuration and thresholds.
func NewEngine(log *logger.Logger, modelCfg model.Config, cfg Config) *Engine {
	return &Engine{
		log:      log.WithComponent("gates"),
		modelCfg: modelCfg,
		cfg:      cfg,
	}
}

// Run evaluates every gate plus the safety floors against the rows at
// the cutoff date. TradeDate and RunID are left for the caller to
// stamp.
func (e *Engine) Run(table *contracts.FeatureTable, d *model.Dataset, cutoff time.Time) *contracts.QualityReport {
	start := time.Now()

	rep := &contracts.QualityReport{
		Gates: make(map[string]contracts.GateResult, len(contracts.GateOrder)),
	}
	rep.NEligible, rep.MissingRate = e.eligibility(table, cutoff)

	wf := e.walkForward(d)
	rep.Gates[wf.Name] = wf
	rep.Confidence = wf.Metric

	cv := e.tickerSplitCV(d)
	rep.Gates[cv.Name] = cv

	for name, g := range e.costGates(d) {
		rep.Gates[name] = g
	}

	st := e.paramStability(d)
	rep.Gates[st.Name] = st

	leak := e.leakDetection(table, d, cutoff)
	rep.Gates[leak.Name] = leak

	rep.Reasons = e.collectReasons(rep)
	rep.AllPassed = len(rep.Reasons) == 0

	e.log.WithFields(map[string]interface{}{
		"all_passed":   rep.AllPassed,
		"n_eligible":   rep.NEligible,
		"missing_rate": rep.MissingRate,
		"confidence":   rep.Confidence,
		"reasons":      len(rep.Reasons),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	}).Info("Quality gates evaluated")
	return rep
}

// eligibility computes the safety floor inputs from the rows the
// scorer would see at the cutoff date. An empty cutoff date counts as
// fully missing.
func (e *Engine) eligibility(table *contracts.FeatureTable, cutoff time.Time) (int, float64) {
	rows := table.RowsAt(cutoff)
	if len(rows) == 0 {
		return 0, 1.0
	}
	missing := 0
	for _, r := range rows {
		for _, col := range e.modelCfg.Features {
			if _, ok := r.Value(col); !ok {
				missing++
				break
			}
		}
	}
	return len(rows), float64(missing) / float64(len(rows))
}

// collectReasons assembles the ordered rejection list: eligibility
// floors first, then failed gates in reporting order, then the
// confidence floor. Duplicates collapse onto their first position.
func (e *Engine) collectReasons(rep *contracts.QualityReport) []string {
	var reasons []string

	if rep.NEligible < e.cfg.MinEligible {
		reasons = append(reasons, fmt.Sprintf("n_eligible=%d < %d", rep.NEligible, e.cfg.MinEligible))
	}
	if rep.MissingRate > e.cfg.MaxMissingRate {
		reasons = append(reasons, fmt.Sprintf("missing_rate=%.2f%% > %.0f%%",
			rep.MissingRate*100, e.cfg.MaxMissingRate*100))
	}
	for _, name := range contracts.GateOrder {
		g, ok := rep.Gates[name]
		if ok && g.Passed {
			continue
		}
		reason := "not evaluated"
		if ok && g.Reason != "" {
			reason = g.Reason
		}
		reasons = append(reasons, fmt.Sprintf("gate:%s - %s", name, reason))
	}
	if rep.Confidence < e.cfg.ConfidenceFloor {
		reasons = append(reasons, fmt.Sprintf("confidence=%.4f < threshold %.4f",
			rep.Confidence, e.cfg.ConfidenceFloor))
	}
	return dedupReasons(reasons)
}

func dedupReasons(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
