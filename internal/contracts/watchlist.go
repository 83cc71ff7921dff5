package contracts

// WatchlistEntry is one selected instrument for a trade date.
// Dropped instruments simply have no entry; absence is the signal.
type WatchlistEntry struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	Score           float64 `json:"score"` // turnover-adjusted
	ReasonShort     string  `json:"reason_short"`
	IsNew           bool    `json:"is_new"`
	TurnoverPenalty float64 `json:"turnover_penalty"`
}

// Codes extracts the entry codes in list order.
func Codes(entries []WatchlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Code)
	}
	return out
}
