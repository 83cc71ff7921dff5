package features

// RegimeColumn is the one non-numeric column of the table. It is
// stored on FeatureRow.Regime, not in Values; exporters substitute it
// when they reach this name in ColumnOrder.
const RegimeColumn = "market_regime"

// ColumnOrder is the canonical column order of the wide feature table.
// Every export and every matrix assembly iterates in this order.
// ⭐ SSOT: 特徴量カラムの正準順序はこのリストだけ
var ColumnOrder = []string{
	"avg_traded_value_20d", "liq_score",
	"ret_1d", "ret_3d", "ret_5d", "ret_20d", "ret_60d", "absret_1d",
	"hh_20d",
	"volume_z_20d",
	"vol_20", "vol_60", "vol_z_20d", "vol_z_60d",
	"prev_close", "gap_1d", "range", "close_to_high_1d", "close_pos_in_range_1d",
	"trend_20d", "trend_60d",
	"up_streak_3",
	"market_ret_20d", "market_ret_60d", "rs_20d", "rs_60d",
	"earnings_react_1d", "earnings_drift_5d", "earnings_quality_z",
	"data_stale_flag", RegimeColumn,
	"op_margin_yoy", "guidance_up_flag", "event_bullish_count_60d",
}
