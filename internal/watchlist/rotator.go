// Package watchlist turns model scores into the bounded candidate set
// for the next trade date. Rotation dampens churn: incumbents carry no
// turnover penalty and newcomers enter at a capped rate, so the set
// drifts with the signal instead of jumping.
package watchlist

import (
	"sort"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// Config holds the rotation bounds and scoring inputs.
type Config struct {
	Size            int
	MaxNew          int
	MinRetained     int
	Slack           int
	TurnoverPenalty float64
	SignalFeatures  []string

	// Multipliers scales scores by regime label. Unknown labels scale
	// by 1.
	Multipliers map[string]float64
}

// Rotator builds the next watchlist from scored rows and the prior set.
type Rotator struct {
	log *logger.Logger
	cfg Config
}

// NewRotator binds the rotator to its bounds.
func NewRotator(log *logger.Logger, cfg Config) *Rotator {
	return &Rotator{log: log.WithComponent("watchlist"), cfg: cfg}
}

// Build scores the rows at the cutoff date and applies the rotation
// bounds against the prior set. prior is consumed read-only; names
// maps codes to display names and may be nil.
func (r *Rotator) Build(table *contracts.FeatureTable, cutoff time.Time, coef map[string]float64, prior []string, names map[string]string) []contracts.WatchlistEntry {
	rows := table.RowsAt(cutoff)
	if len(rows) == 0 {
		r.log.WithField("cutoff", cutoff.Format("2006-01-02")).Warn("No rows to score for watchlist")
		return nil
	}

	mult := r.multiplier(rows)
	priorSet := make(map[string]struct{}, len(prior))
	for _, c := range prior {
		priorSet[c] = struct{}{}
	}

	ranked := make([]candidate, 0, len(rows))
	for _, row := range rows {
		c := candidate{
			code:   row.Code,
			name:   row.Code,
			score:  mult * compositeScore(row, r.cfg.SignalFeatures, coef),
			reason: reasonShort(row, r.cfg.SignalFeatures),
		}
		if n, ok := names[row.Code]; ok && n != "" {
			c.name = n
		}
		if _, held := priorSet[row.Code]; !held {
			c.isNew = true
			c.penalty = r.cfg.TurnoverPenalty
		}
		c.adj = c.score - c.penalty
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].adj != ranked[j].adj {
			return ranked[i].adj > ranked[j].adj
		}
		return ranked[i].code < ranked[j].code
	})

	selected := r.pick(ranked, len(priorSet))

	entries := make([]contracts.WatchlistEntry, 0, len(selected))
	nNew := 0
	for _, c := range selected {
		if c.isNew {
			nNew++
		}
		entries = append(entries, contracts.WatchlistEntry{
			Code:            c.code,
			Name:            c.name,
			Score:           c.adj,
			ReasonShort:     c.reason,
			IsNew:           c.isNew,
			TurnoverPenalty: c.penalty,
		})
	}

	r.log.WithFields(map[string]interface{}{
		"cutoff":   cutoff.Format("2006-01-02"),
		"entries":  len(entries),
		"new":      nNew,
		"retained": len(entries) - nNew,
	}).Info("Watchlist built")
	return entries
}

// multiplier resolves the day's regime label to its score multiplier.
func (r *Rotator) multiplier(rows []*contracts.FeatureRow) float64 {
	regime := contracts.RegimeRiskOn
	for _, row := range rows {
		if row.Regime != "" {
			regime = row.Regime
			break
		}
	}
	if m, ok := r.cfg.Multipliers[regime]; ok {
		return m
	}
	return 1.0
}

// pick applies the rotation bounds to rank-ordered candidates. The
// first run (empty prior set) takes the plain top Size with no
// entrant cap.
func (r *Rotator) pick(ranked []candidate, nPrior int) []candidate {
	if nPrior == 0 {
		if len(ranked) > r.cfg.Size {
			ranked = ranked[:r.cfg.Size]
		}
		return ranked
	}

	window := r.cfg.Size + r.cfg.Slack
	var retained, laterPrior, entrants []int
	for i := range ranked {
		switch {
		case !ranked[i].isNew && i < window:
			retained = append(retained, i)
		case !ranked[i].isNew:
			laterPrior = append(laterPrior, i)
		default:
			entrants = append(entrants, i)
		}
	}

	// 最低保持数まで、圏外の既存銘柄を順位順で繰り上げる
	floor := r.cfg.MinRetained
	if eligible := len(retained) + len(laterPrior); eligible < floor {
		floor = eligible
	}
	for len(retained) < floor {
		retained = append(retained, laterPrior[0])
		laterPrior = laterPrior[1:]
	}

	capNew := r.cfg.MaxNew
	if room := r.cfg.Size - len(retained); room < capNew {
		capNew = room
	}
	if capNew < 0 {
		capNew = 0
	}
	if len(entrants) > capNew {
		entrants = entrants[:capNew]
	}

	sel := append(retained, entrants...)
	sort.Ints(sel)
	if len(sel) > r.cfg.Size {
		sel = sel[:r.cfg.Size]
	}
	out := make([]candidate, len(sel))
	for k, i := range sel {
		out[k] = ranked[i]
	}
	return out
}
