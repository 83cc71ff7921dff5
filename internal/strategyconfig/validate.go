package strategyconfig

import "fmt"

// ValidationError reports a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks field ranges and cross-field constraints. The first
// violation is returned; callers treat any error as fatal.
func (c *Config) Validate() error {
	if c.Meta.StrategyID == "" {
		return &ValidationError{Field: "meta.strategy_id", Message: "must not be empty"}
	}
	if c.Meta.Timezone == "" {
		return &ValidationError{Field: "meta.timezone", Message: "must not be empty"}
	}

	switch c.Model.Type {
	case "ridge", "elastic_net":
	default:
		return &ValidationError{Field: "model.type", Message: fmt.Sprintf("unknown type %q (ridge or elastic_net)", c.Model.Type)}
	}
	if c.Model.Alpha < 0 {
		return &ValidationError{Field: "model.alpha", Message: "must be >= 0"}
	}
	if c.Model.L1Ratio < 0 || c.Model.L1Ratio > 1 {
		return &ValidationError{Field: "model.l1_ratio", Message: "must be in [0, 1]"}
	}
	if c.Model.HorizonDays < 1 {
		return &ValidationError{Field: "model.horizon_days", Message: "must be >= 1"}
	}
	if len(c.Model.Features) == 0 {
		return &ValidationError{Field: "model.features", Message: "must not be empty"}
	}

	if c.Gates.WFFolds < 2 {
		return &ValidationError{Field: "gates.wf_folds", Message: "must be >= 2"}
	}
	if c.Gates.TickerCVFolds < 2 {
		return &ValidationError{Field: "gates.ticker_cv_folds", Message: "must be >= 2"}
	}
	if c.Gates.StabilityThreshold < 0 || c.Gates.StabilityThreshold > 1 {
		return &ValidationError{Field: "gates.stability_threshold", Message: "must be in [0, 1]"}
	}
	if c.Gates.LeakCorrLimit <= 0 || c.Gates.LeakCorrLimit > 1 {
		return &ValidationError{Field: "gates.leak_corr_limit", Message: "must be in (0, 1]"}
	}
	if c.Gates.MaxMissingRate < 0 || c.Gates.MaxMissingRate > 1 {
		return &ValidationError{Field: "gates.max_missing_rate", Message: "must be in [0, 1]"}
	}
	if c.Gates.MinEligible < 1 {
		return &ValidationError{Field: "gates.min_eligible", Message: "must be >= 1"}
	}
	// The floor must sit strictly above the gate threshold, otherwise a
	// run could pass the gate yet still be blocked, or vice versa, with
	// no way to tell the two apart in the report.
	if c.Gates.ConfidenceFloor <= c.Gates.WFICThreshold {
		return &ValidationError{Field: "gates.confidence_floor", Message: "must be strictly greater than wf_ic_threshold"}
	}

	if c.Watchlist.Size < 1 {
		return &ValidationError{Field: "watchlist.size", Message: "must be >= 1"}
	}
	if c.Watchlist.MaxNew < 0 {
		return &ValidationError{Field: "watchlist.max_new", Message: "must be >= 0"}
	}
	if c.Watchlist.MinRetained < 0 {
		return &ValidationError{Field: "watchlist.min_retained", Message: "must be >= 0"}
	}
	if c.Watchlist.MinRetained > c.Watchlist.Size {
		return &ValidationError{Field: "watchlist.min_retained", Message: "must not exceed watchlist.size"}
	}
	if c.Watchlist.Slack < 0 {
		return &ValidationError{Field: "watchlist.slack", Message: "must be >= 0"}
	}
	if c.Watchlist.TurnoverPenalty < 0 {
		return &ValidationError{Field: "watchlist.turnover_penalty", Message: "must be >= 0"}
	}
	if len(c.Watchlist.SignalFeatures) == 0 {
		return &ValidationError{Field: "watchlist.signal_features", Message: "must not be empty"}
	}
	if c.Watchlist.RegimeMultipliers.RiskOn <= 0 {
		return &ValidationError{Field: "watchlist.regime_multipliers.risk_on", Message: "must be > 0"}
	}
	if c.Watchlist.RegimeMultipliers.RiskOff <= 0 {
		return &ValidationError{Field: "watchlist.regime_multipliers.risk_off", Message: "must be > 0"}
	}

	return nil
}
