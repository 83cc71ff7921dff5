package features

import (
	"math"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// frame is the per-instrument working set during a build. Column
// arrays are aligned with dates; NaN marks a missing value until the
// final assembly converts rows into the absent-key representation.
type frame struct {
	code  string
	dates []time.Time

	open, high, low, closePx, volume []float64
	price                            []float64 // adjusted close when present, else close
	suspended                        []bool

	cols  map[string][]float64
	flags []map[string]struct{}
}

func newFrame(code string, bars []*contracts.Bar) *frame {
	n := len(bars)
	f := &frame{
		code:      code,
		dates:     make([]time.Time, n),
		open:      make([]float64, n),
		high:      make([]float64, n),
		low:       make([]float64, n),
		closePx:   make([]float64, n),
		volume:    make([]float64, n),
		price:     make([]float64, n),
		suspended: make([]bool, n),
		cols:      make(map[string][]float64),
		flags:     make([]map[string]struct{}, n),
	}
	for i, b := range bars {
		f.dates[i] = b.Date
		f.open[i] = deref(b.Open)
		f.high[i] = deref(b.High)
		f.low[i] = deref(b.Low)
		f.closePx[i] = deref(b.Close)
		f.volume[i] = deref(b.Volume)
		f.suspended[i] = b.Suspended
		if p, ok := b.Price(); ok {
			f.price[i] = p
		} else {
			f.price[i] = math.NaN()
		}
		f.flags[i] = make(map[string]struct{})
	}
	return f
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func (f *frame) n() int { return len(f.dates) }

func (f *frame) addFlag(i int, name string) {
	f.flags[i][name] = struct{}{}
}

func (f *frame) flagAll(name string) {
	for i := range f.flags {
		f.flags[i][name] = struct{}{}
	}
}

// set registers a column array; the array must have length n().
func (f *frame) set(col string, arr []float64) {
	f.cols[col] = arr
}

// constCol fills a column with the same value on every row.
func (f *frame) constCol(col string, v float64) {
	arr := make([]float64, f.n())
	for i := range arr {
		arr[i] = v
	}
	f.cols[col] = arr
}

func nanSlice(n int) []float64 {
	arr := make([]float64, n)
	for i := range arr {
		arr[i] = math.NaN()
	}
	return arr
}
