package watchlist

import (
	"math"
	"strings"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// candidate is one scored instrument before rotation.
type candidate struct {
	code    string
	name    string
	score   float64 // regime-adjusted composite
	adj     float64 // score minus turnover penalty
	penalty float64
	isNew   bool
	reason  string
}

// compositeScore sums coefficient times feature value over the signal
// features. A missing value contributes nothing; features without a
// fitted coefficient are ignored.
func compositeScore(row *contracts.FeatureRow, signalFeatures []string, coef map[string]float64) float64 {
	var s float64
	for _, f := range signalFeatures {
		c, ok := coef[f]
		if !ok {
			continue
		}
		if v, present := row.Value(f); present {
			s += c * v
		}
	}
	return s
}

// reasonShort names the present signal feature with the largest
// magnitude, underscores replaced by spaces. Rows carrying none of
// the signal features fall back to "composite".
func reasonShort(row *contracts.FeatureRow, signalFeatures []string) string {
	best := ""
	bestAbs := math.Inf(-1)
	for _, f := range signalFeatures {
		v, ok := row.Value(f)
		if !ok {
			continue
		}
		if a := math.Abs(v); a > bestAbs {
			bestAbs = a
			best = f
		}
	}
	if best == "" {
		return "composite"
	}
	return strings.ReplaceAll(best, "_", " ")
}
