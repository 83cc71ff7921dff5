package strategyconfig

// Config is the full strategy parameter set for a pipeline run. Every
// option is enumerated here; there is no free-form extension point.
// ⭐ SSOT: 戦略パラメータの定義はここだけ
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Model     Model     `yaml:"model" json:"model"`
	Gates     Gates     `yaml:"gates" json:"gates"`
	Watchlist Watchlist `yaml:"watchlist" json:"watchlist"`
}

// Meta identifies the strategy revision.
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"`
}

// Model selects and parameterizes the linear predictor. Type is an
// explicit choice between the two supported estimators; nothing is
// selected automatically.
type Model struct {
	Type        string   `yaml:"type" json:"type"` // "ridge" | "elastic_net"
	Alpha       float64  `yaml:"alpha" json:"alpha"`
	L1Ratio     float64  `yaml:"l1_ratio" json:"l1_ratio"`
	HorizonDays int      `yaml:"horizon_days" json:"horizon_days"`
	Features    []string `yaml:"features" json:"features"`
}

// Gates holds every gate threshold and safety floor.
type Gates struct {
	WFICThreshold      float64 `yaml:"wf_ic_threshold" json:"wf_ic_threshold"`
	WFFolds            int     `yaml:"wf_folds" json:"wf_folds"`
	TickerCVThreshold  float64 `yaml:"ticker_cv_threshold" json:"ticker_cv_threshold"`
	TickerCVFolds      int     `yaml:"ticker_cv_folds" json:"ticker_cv_folds"`
	StabilityThreshold float64 `yaml:"stability_threshold" json:"stability_threshold"`
	LeakCorrLimit      float64 `yaml:"leak_corr_limit" json:"leak_corr_limit"`

	// Safety floors, checked regardless of gate outcomes.
	MaxMissingRate  float64 `yaml:"max_missing_rate" json:"max_missing_rate"`
	MinEligible     int     `yaml:"min_eligible" json:"min_eligible"`
	ConfidenceFloor float64 `yaml:"confidence_floor" json:"confidence_floor"`
}

// Watchlist holds the rotation bounds and scoring inputs.
type Watchlist struct {
	Size            int      `yaml:"size" json:"size"`
	MaxNew          int      `yaml:"max_new" json:"max_new"`
	MinRetained     int      `yaml:"min_retained" json:"min_retained"`
	Slack           int      `yaml:"slack" json:"slack"`
	TurnoverPenalty float64  `yaml:"turnover_penalty" json:"turnover_penalty"`
	SignalFeatures  []string `yaml:"signal_features" json:"signal_features"`

	RegimeMultipliers RegimeMultipliers `yaml:"regime_multipliers" json:"regime_multipliers"`
}

// RegimeMultipliers scales scores by the market regime projection.
type RegimeMultipliers struct {
	RiskOn  float64 `yaml:"risk_on" json:"risk_on"`
	RiskOff float64 `yaml:"risk_off" json:"risk_off"`
}

// Default returns the baseline parameter set. Demo runs and tests use
// it directly; production runs load YAML and may override any field.
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "kabuto-daily-v1",
			Version:    "1.0.0",
			Timezone:   "Asia/Tokyo",
		},
		Model: Model{
			Type:        "ridge",
			Alpha:       1.0,
			L1Ratio:     0.5,
			HorizonDays: 5,
			Features: []string{
				"rs_20d", "rs_60d",
				"trend_20d", "trend_60d",
				"gap_1d", "volume_z_20d",
				"vol_z_20d", "vol_z_60d",
				"liq_score", "up_streak_3",
				"close_pos_in_range_1d",
				"earnings_quality_z",
			},
		},
		Gates: Gates{
			WFICThreshold:      0.01,
			WFFolds:            3,
			TickerCVThreshold:  0.00,
			TickerCVFolds:      5,
			StabilityThreshold: 0.70,
			LeakCorrLimit:      0.99,
			MaxMissingRate:     0.20,
			MinEligible:        5,
			ConfidenceFloor:    0.02,
		},
		Watchlist: Watchlist{
			Size:            50,
			MaxNew:          20,
			MinRetained:     30,
			Slack:           0,
			TurnoverPenalty: 0.01,
			SignalFeatures: []string{
				"rs_20d", "trend_20d", "gap_1d",
				"volume_z_20d", "up_streak_3",
				"rs_60d", "trend_60d", "vol_z_60d",
				"earnings_quality_z", "liq_score",
			},
			RegimeMultipliers: RegimeMultipliers{
				RiskOn:  1.0,
				RiskOff: 0.5,
			},
		},
	}
}
