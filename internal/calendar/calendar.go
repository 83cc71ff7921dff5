package calendar

import "time"

// DayType is the three-valued result of trading-day resolution.
// Unknown is deliberate: a resolver that cannot decide must say so
// instead of guessing, and the fail-open treatment of Unknown happens
// in exactly one reviewable place (NextTradeDate).
type DayType int

const (
	BusinessDay DayType = iota
	Holiday
	Unknown
)

// String implements fmt.Stringer for logging.
func (d DayType) String() string {
	switch d {
	case BusinessDay:
		return "business_day"
	case Holiday:
		return "holiday"
	default:
		return "unknown"
	}
}

// Resolver decides what kind of day a date is.
type Resolver interface {
	Resolve(date time.Time) DayType
}

// JST is the exchange timezone. time.FixedZone keeps the binary free of
// tzdata requirements.
var JST = time.FixedZone("Asia/Tokyo", 9*60*60)

// NextTradeDate returns the first date strictly after asOf that is not
// a Holiday. Unknown days are treated as business days; failing open
// here means a misconfigured holiday table costs one harmless run on a
// closed market rather than a silently skipped trading day.
func NextTradeDate(asOf time.Time, r Resolver) time.Time {
	d := asOf.AddDate(0, 0, 1)
	for r.Resolve(d) == Holiday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Date normalizes t to midnight in JST.
func Date(t time.Time) time.Time {
	y, m, day := t.In(JST).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, JST)
}
