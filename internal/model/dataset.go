package model

import (
	"math"
	"sort"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// LabelKey identifies one labeled observation.
type LabelKey struct {
	Code string
	Date time.Time
}

// ForwardReturns computes the realized forward return over the given
// session horizon for every bar where the future price is known:
// (p[i+h] - p[i]) / p[i]. Rows within h sessions of the end of a
// code's history get no label. The price series prefers the adjusted
// close, matching the feature builder.
func ForwardReturns(bars map[string][]*contracts.Bar, horizon int) map[LabelKey]float64 {
	labels := make(map[LabelKey]float64)
	for code, history := range bars {
		ordered := make([]*contracts.Bar, len(history))
		copy(ordered, history)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

		n := len(ordered)
		for i := 0; i+horizon < n; i++ {
			p0, ok0 := ordered[i].Price()
			ph, okh := ordered[i+horizon].Price()
			if !ok0 || !okh || p0 <= 0 {
				continue
			}
			labels[LabelKey{Code: code, Date: ordered[i].Date}] = (ph - p0) / p0
		}
	}
	return labels
}

// Dataset is the matrix view of the labeled feature rows, bound to one
// fixed column order. X keeps NaN for missing values; imputation
// happens at fit time so every subset computes its own training means.
type Dataset struct {
	Features []string
	Rows     []*contracts.FeatureRow
	X        [][]float64
	Y        []float64
}

// NewDataset selects the rows whose forward return is computable and
// assembles the matrix in the given column order. Row order follows
// table order, so identical inputs always produce an identical matrix.
func NewDataset(table *contracts.FeatureTable, labels map[LabelKey]float64, features []string) *Dataset {
	d := &Dataset{Features: features}
	for _, row := range table.Rows {
		y, ok := labels[LabelKey{Code: row.Code, Date: row.Date}]
		if !ok {
			continue
		}
		x := make([]float64, len(features))
		for j, col := range features {
			if v, present := row.Value(col); present {
				x[j] = v
			} else {
				x[j] = math.NaN()
			}
		}
		d.Rows = append(d.Rows, row)
		d.X = append(d.X, x)
		d.Y = append(d.Y, y)
	}
	return d
}

// Len returns the number of labeled rows.
func (d *Dataset) Len() int { return len(d.X) }

// UniqueDates returns the distinct row dates in ascending order.
func (d *Dataset) UniqueDates() []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, r := range d.Rows {
		if _, ok := seen[r.Date]; !ok {
			seen[r.Date] = struct{}{}
			dates = append(dates, r.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// UniqueCodes returns the distinct instrument codes in ascending order.
func (d *Dataset) UniqueCodes() []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, r := range d.Rows {
		if _, ok := seen[r.Code]; !ok {
			seen[r.Code] = struct{}{}
			codes = append(codes, r.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// FilterDates keeps the rows whose date satisfies keep, preserving
// row order.
func (d *Dataset) FilterDates(keep func(time.Time) bool) *Dataset {
	out := &Dataset{Features: d.Features}
	for i, r := range d.Rows {
		if keep(r.Date) {
			out.Rows = append(out.Rows, r)
			out.X = append(out.X, d.X[i])
			out.Y = append(out.Y, d.Y[i])
		}
	}
	return out
}

// FilterCodes keeps the rows whose code satisfies keep, preserving
// row order.
func (d *Dataset) FilterCodes(keep func(string) bool) *Dataset {
	out := &Dataset{Features: d.Features}
	for i, r := range d.Rows {
		if keep(r.Code) {
			out.Rows = append(out.Rows, r)
			out.X = append(out.X, d.X[i])
			out.Y = append(out.Y, d.Y[i])
		}
	}
	return out
}
