package contracts

import "time"

// Bar represents one daily OHLCV observation for one instrument.
// ⭐ SSOT: 日足バーの形はここで定義する
// Nil fields mean the vendor did not deliver the value; the feature
// builder turns absence into quality flags, never into zeros.
type Bar struct {
	Date      time.Time `json:"date"`
	Code      string    `json:"code"`
	Open      *float64  `json:"open"`
	High      *float64  `json:"high"`
	Low       *float64  `json:"low"`
	Close     *float64  `json:"close"`
	Volume    *float64  `json:"volume"`
	AdjClose  *float64  `json:"adj_close,omitempty"`
	Suspended bool      `json:"suspended,omitempty"`
}

// Price returns the series value used for return computations:
// adjusted close when present, raw close otherwise.
func (b *Bar) Price() (float64, bool) {
	if b.AdjClose != nil {
		return *b.AdjClose, true
	}
	if b.Close != nil {
		return *b.Close, true
	}
	return 0, false
}

// EventType classifies a corporate event.
type EventType string

const (
	EventEarnings EventType = "earnings"
	EventBullish  EventType = "bullish"
)

// Event represents one dated corporate event for one instrument.
type Event struct {
	Code string    `json:"code"`
	Date time.Time `json:"date"`
	Type EventType `json:"event_type"`
}
