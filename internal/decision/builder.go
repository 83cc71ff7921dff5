// Package decision assembles and writes the per-trade-date artifact
// set. Assembly is formatting only: every number comes from the gate
// report, the watchlist, or the manifest inputs, never recomputed
// here.
package decision

import (
	"math"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// Builder produces decision cards.
// ⭐ SSOT: decision_card を組み立てるのはここだけ
type Builder struct {
	log *logger.Logger
}

// NewBuilder returns a card builder.
func NewBuilder(log *logger.Logger) *Builder {
	return &Builder{log: log.WithComponent("decision")}
}

// BuildCard merges the gate report and watchlist into the card. The
// displayed confidence clamps a negative walk-forward IC to zero; the
// raw statistic stays in the quality report.
func (b *Builder) BuildCard(rep *contracts.QualityReport, watchlist []contracts.WatchlistEntry) *contracts.DecisionCard {
	action := contracts.ActionNoTrade
	if rep.AllPassed {
		action = contracts.ActionTrade
	}
	reasons := rep.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	card := &contracts.DecisionCard{
		SchemaVersion:  contracts.SchemaVersion,
		TradeDate:      rep.TradeDate,
		RunID:          rep.RunID,
		Action:         action,
		NoTradeReasons: reasons,
		Top3:           TopK(watchlist, 3),
		KeyMetrics: contracts.KeyMetrics{
			Confidence:  round6(math.Max(0, rep.Confidence)),
			WFIC:        round6(rep.Confidence),
			NEligible:   rep.NEligible,
			MissingRate: round4(rep.MissingRate),
		},
	}
	b.log.WithFields(map[string]interface{}{
		"trade_date": card.TradeDate,
		"action":     string(card.Action),
		"top":        len(card.Top3),
	}).Info("Decision card assembled")
	return card
}

// TopK formats the leading k watchlist entries as ranked rows. The
// watchlist is already in rank order, so selection is a prefix.
func TopK(watchlist []contracts.WatchlistEntry, k int) []contracts.RankedEntry {
	if k > len(watchlist) {
		k = len(watchlist)
	}
	out := make([]contracts.RankedEntry, 0, k)
	for i := 0; i < k; i++ {
		e := watchlist[i]
		out = append(out, contracts.RankedEntry{
			Rank:        i + 1,
			Code:        e.Code,
			Name:        e.Name,
			Score:       round6(e.Score),
			ReasonShort: e.ReasonShort,
		})
	}
	return out
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
