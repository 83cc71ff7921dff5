package pipeline

import "github.com/hmuraoka/kabuto/internal/contracts"

// sanitizeBars drops structurally broken bars before they reach the
// store or the feature builder. Missing fields are not breakage; they
// turn into quality flags downstream. Non-positive prices, inverted
// high/low ranges and negative volumes are vendor defects.
func sanitizeBars(bars map[string][]*contracts.Bar) (map[string][]*contracts.Bar, int) {
	dropped := 0
	out := make(map[string][]*contracts.Bar, len(bars))
	for code, series := range bars {
		kept := make([]*contracts.Bar, 0, len(series))
		for _, b := range series {
			if barBroken(b) {
				dropped++
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) > 0 {
			out[code] = kept
		}
	}
	return out, dropped
}

// barBroken reports whether a single bar is structurally unusable.
func barBroken(b *contracts.Bar) bool {
	if b == nil || b.Code == "" || b.Date.IsZero() {
		return true
	}
	for _, p := range []*float64{b.Open, b.High, b.Low, b.Close, b.AdjClose} {
		if p != nil && *p <= 0 {
			return true
		}
	}
	if b.High != nil && b.Low != nil && *b.High < *b.Low {
		return true
	}
	return b.Volume != nil && *b.Volume < 0
}
