package contracts

// Gate names in the fixed reporting order. Evaluation order never
// affects outcomes; this order only fixes how results are listed.
const (
	GateWalkForward    = "walk_forward"
	GateTickerSplitCV  = "ticker_split_cv"
	GateCost5bps       = "cost_5bps"
	GateCost15bps      = "cost_15bps"
	GateParamStability = "param_stability"
	GateLeakDetection  = "leak_detection"
)

// GateOrder is the canonical reporting order for the six gates.
var GateOrder = []string{
	GateWalkForward,
	GateTickerSplitCV,
	GateCost5bps,
	GateCost15bps,
	GateParamStability,
	GateLeakDetection,
}

// GateResult is the outcome of one statistical quality gate.
// ⭐ SSOT: ゲート結果の形はここだけ
type GateResult struct {
	Name      string             `json:"name"`
	Passed    bool               `json:"passed"`
	Metric    float64            `json:"metric"`
	Threshold float64            `json:"threshold"`
	Reason    string             `json:"reason,omitempty"`
	Details   map[string]float64 `json:"details,omitempty"`
}

// QualityReport aggregates all gate results and the safety floors for a
// run. A gate absent from Gates counts as failed (fail-closed); the
// engine always emits all six, so absence only matters to consumers
// reading partial artifacts.
type QualityReport struct {
	TradeDate string                `json:"trade_date"`
	RunID     string                `json:"run_id"`
	AllPassed bool                  `json:"all_passed"`
	Gates     map[string]GateResult `json:"gates"`

	// Safety floor inputs, recorded even when every gate passes.
	MissingRate float64 `json:"missing_rate"`
	NEligible   int     `json:"n_eligible"`
	Confidence  float64 `json:"confidence"` // raw walk-forward mean IC

	// Ordered, deduplicated. Non-empty exactly when the decision is
	// NO_TRADE.
	Reasons []string `json:"rejection_reasons"`
}

// Gate returns the named result and whether it exists.
func (q *QualityReport) Gate(name string) (GateResult, bool) {
	g, ok := q.Gates[name]
	return g, ok
}

// GatePassed treats a missing gate result as a failure.
func (q *QualityReport) GatePassed(name string) bool {
	g, ok := q.Gates[name]
	return ok && g.Passed
}
