package calendar

import "time"

// JPX resolves Tokyo Stock Exchange trading days from an embedded
// holiday table. Weekends are authoritative for any year; weekday
// holidays are only known inside the table's year range, so weekdays
// outside that range resolve to Unknown.
type JPX struct {
	holidays  map[string]bool
	yearFrom  int
	yearUntil int
}

// NewJPX builds the resolver with the embedded table.
func NewJPX() *JPX {
	return &JPX{
		holidays:  jpxHolidays,
		yearFrom:  2024,
		yearUntil: 2026,
	}
}

// Resolve implements Resolver.
func (j *JPX) Resolve(date time.Time) DayType {
	d := Date(date)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return Holiday
	}
	if j.holidays[d.Format("2006-01-02")] {
		return Holiday
	}
	if d.Year() < j.yearFrom || d.Year() > j.yearUntil {
		return Unknown
	}
	return BusinessDay
}

// National holidays plus exchange year-end closures (Dec 31 - Jan 3).
// Weekend-falling holidays are included for completeness even though
// the weekday check already covers them.
var jpxHolidays = map[string]bool{
	// 2024
	"2024-01-01": true, "2024-01-02": true, "2024-01-03": true,
	"2024-01-08": true, "2024-02-11": true, "2024-02-12": true,
	"2024-02-23": true, "2024-03-20": true, "2024-04-29": true,
	"2024-05-03": true, "2024-05-04": true, "2024-05-05": true,
	"2024-05-06": true, "2024-07-15": true, "2024-08-11": true,
	"2024-08-12": true, "2024-09-16": true, "2024-09-22": true,
	"2024-09-23": true, "2024-10-14": true, "2024-11-03": true,
	"2024-11-04": true, "2024-11-23": true, "2024-12-31": true,

	// 2025
	"2025-01-01": true, "2025-01-02": true, "2025-01-03": true,
	"2025-01-13": true, "2025-02-11": true, "2025-02-23": true,
	"2025-02-24": true, "2025-03-20": true, "2025-04-29": true,
	"2025-05-03": true, "2025-05-04": true, "2025-05-05": true,
	"2025-05-06": true, "2025-07-21": true, "2025-08-11": true,
	"2025-09-15": true, "2025-09-23": true, "2025-10-13": true,
	"2025-11-03": true, "2025-11-23": true, "2025-11-24": true,
	"2025-12-31": true,

	// 2026
	"2026-01-01": true, "2026-01-02": true, "2026-01-03": true,
	"2026-01-12": true, "2026-02-11": true, "2026-02-23": true,
	"2026-03-20": true, "2026-04-29": true, "2026-05-03": true,
	"2026-05-04": true, "2026-05-05": true, "2026-05-06": true,
	"2026-07-20": true, "2026-08-11": true, "2026-09-21": true,
	"2026-09-22": true, "2026-09-23": true, "2026-10-12": true,
	"2026-11-03": true, "2026-11-23": true, "2026-12-31": true,
}
