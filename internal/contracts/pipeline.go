package contracts

import "time"

// Stage identifies one step of the daily pipeline.
// ⭐ SSOT: パイプライン段階の定義はここだけ
type Stage string

const (
	StageFeatures  Stage = "features"
	StageModel     Stage = "model"
	StageGates     Stage = "gates"
	StageWatchlist Stage = "watchlist"
	StageDecision  Stage = "decision"
	StageNotify    Stage = "notify"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{
	StageFeatures,
	StageModel,
	StageGates,
	StageWatchlist,
	StageDecision,
	StageNotify,
}

// Description returns a short human-readable description of the stage.
func (s Stage) Description() string {
	switch s {
	case StageFeatures:
		return "build per-instrument and cross-sectional features"
	case StageModel:
		return "fit the configured linear predictor"
	case StageGates:
		return "evaluate quality gates and safety floors"
	case StageWatchlist:
		return "rotate the bounded watchlist"
	case StageDecision:
		return "assemble and write decision artifacts"
	case StageNotify:
		return "deliver the decision notification"
	}
	return string(s)
}

// RunStatus tracks the lifecycle of one pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the persisted ledger entry for one run.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	TradeDate  string     `json:"trade_date"`
	Action     Action     `json:"action,omitempty"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ProgressStatus is the state reported for a stage.
type ProgressStatus string

const (
	ProgressStarted   ProgressStatus = "started"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEvent is published as the runner moves through stages. The
// artifact API relays these over websocket for live monitoring.
type ProgressEvent struct {
	RunID     string         `json:"run_id"`
	TradeDate string         `json:"trade_date"`
	Stage     Stage          `json:"stage"`
	Status    ProgressStatus `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}
