package contracts

import (
	"sort"
	"time"
)

// Quality flag names attached by the feature builder. A missing feature
// value always has at least one of these explaining it.
const (
	FlagMissingPrice  = "missing_price"
	FlagMissingVolume = "missing_volume"
	FlagMissingOHLC   = "missing_ohlc"
	FlagZeroRange     = "zero_range"
	FlagNegativeRange = "negative_range"
	FlagSuspended     = "suspended"
	FlagNonposPrev    = "nonpositive_prev_close"
	FlagVolumeStdZero = "volume_std_zero"
	FlagCSStdZero     = "cs_std_zero"
	FlagNoEvents      = "no_events"
	FlagNoRecentEvent = "no_recent_event"
	FlagNoStatements  = "no_statements"
	FlagStaleData     = "stale_data"
)

// InsufficientHistoryFlag names the flag for an incomplete rolling window.
func InsufficientHistoryFlag(window int) string {
	switch window {
	case 1:
		return "insufficient_history_1"
	case 3:
		return "insufficient_history_3"
	case 5:
		return "insufficient_history_5"
	case 20:
		return "insufficient_history_20"
	case 60:
		return "insufficient_history_60"
	}
	return "insufficient_history"
}

// Market regime labels derived once per date. A projection for scoring,
// never fed back in as a feature column.
const (
	RegimeRiskOn  = "risk_on"
	RegimeRiskOff = "risk_off"
)

// FeatureRow is one (code, date) row of the wide feature table.
// ⭐ SSOT: 特徴量テーブルの1行。欠損値はキー不在で表現する
type FeatureRow struct {
	Date   time.Time          `json:"as_of"`
	Code   string             `json:"code"`
	Values map[string]float64 `json:"values"`
	Flags  []string           `json:"quality_flags"`
	Regime string             `json:"market_regime,omitempty"`
}

// NewFeatureRow allocates an empty row for (code, date).
func NewFeatureRow(date time.Time, code string) *FeatureRow {
	return &FeatureRow{
		Date:   date,
		Code:   code,
		Values: make(map[string]float64),
	}
}

// Value returns the named feature and whether it is present.
func (r *FeatureRow) Value(col string) (float64, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// Set stores a feature value.
func (r *FeatureRow) Set(col string, v float64) {
	r.Values[col] = v
}

// AddFlag records a quality flag, keeping Flags sorted and unique.
func (r *FeatureRow) AddFlag(flag string) {
	i := sort.SearchStrings(r.Flags, flag)
	if i < len(r.Flags) && r.Flags[i] == flag {
		return
	}
	r.Flags = append(r.Flags, "")
	copy(r.Flags[i+1:], r.Flags[i:])
	r.Flags[i] = flag
}

// HasFlag reports whether the row carries the named flag.
func (r *FeatureRow) HasFlag(flag string) bool {
	i := sort.SearchStrings(r.Flags, flag)
	return i < len(r.Flags) && r.Flags[i] == flag
}

// FeatureTable is the full output of one feature build: rows ordered by
// (code, date) plus the per-date regime projection.
type FeatureTable struct {
	Rows    []*FeatureRow        `json:"rows"`
	Regimes map[time.Time]string `json:"-"`
	Cutoff  time.Time            `json:"cutoff"`
}

// RowsAt returns the rows for one date in code order.
// Rows are already grouped per code and ascending in date, so a simple
// filter preserves the deterministic order.
func (t *FeatureTable) RowsAt(date time.Time) []*FeatureRow {
	var out []*FeatureRow
	for _, r := range t.Rows {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// LastDate returns the latest date present in the table.
func (t *FeatureTable) LastDate() (time.Time, bool) {
	var last time.Time
	found := false
	for _, r := range t.Rows {
		if !found || r.Date.After(last) {
			last = r.Date
			found = true
		}
	}
	return last, found
}
