package contracts

import "time"

// SchemaVersion identifies the artifact schema. Bump when an output
// field changes meaning.
const SchemaVersion = "2"

// Action is the aggregate recommendation of a run.
type Action string

const (
	ActionTrade   Action = "TRADE"
	ActionNoTrade Action = "NO_TRADE"
)

// RankedEntry is one row of the decision card's top list.
type RankedEntry struct {
	Rank        int     `json:"rank"`
	Code        string  `json:"code"`
	Name        string  `json:"name,omitempty"`
	Score       float64 `json:"score"`
	ReasonShort string  `json:"reason_short"`
}

// KeyMetrics summarizes the numbers a reader checks first.
// Confidence is clamped at zero for display; the raw walk-forward IC
// lives in the quality report.
type KeyMetrics struct {
	Confidence  float64 `json:"confidence"`
	WFIC        float64 `json:"wf_ic"`
	NEligible   int     `json:"n_eligible"`
	MissingRate float64 `json:"missing_rate"`
}

// DecisionCard is the per-trade-date decision artifact.
// ⭐ SSOT: decision_card を書けるのは decision パッケージだけ
// Immutable per (trade_date, run_id); a trade date is recomputed
// explicitly, never merged.
type DecisionCard struct {
	SchemaVersion  string        `json:"schema_version"`
	TradeDate      string        `json:"trade_date"`
	RunID          string        `json:"run_id"`
	Action         Action        `json:"action"`
	NoTradeReasons []string      `json:"no_trade_reasons"`
	Top3           []RankedEntry `json:"top3"`
	KeyMetrics     KeyMetrics    `json:"key_metrics"`
}

// Manifest binds a decision card to the exact code, data and
// configuration that produced it.
type Manifest struct {
	RunID        string      `json:"run_id"`
	TradeDate    string      `json:"trade_date"`
	CodeHash     string      `json:"code_hash"`
	InputsDigest string      `json:"inputs_digest"`
	ConfigHash   string      `json:"config_hash"`
	GeneratedAt  time.Time   `json:"generated_at"`
	Params       interface{} `json:"params"`
}
