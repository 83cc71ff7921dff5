package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// ErrEmptyUniverse is returned when there is nothing to build features
// from. It is structural: the run must fail rather than emit artifacts
// computed over nothing.
var ErrEmptyUniverse = errors.New("empty universe")

const defaultWorkers = 4

// staleAfterDays marks a code as stale when its last bar is older than
// this many calendar days before the cutoff.
const staleAfterDays = 5

// Builder derives the wide feature table from bar history. Pass 1
// computes per-instrument series concurrently; pass 2 is the
// cross-sectional barrier and only starts after every instrument has
// finished, so the result never depends on worker scheduling.
type Builder struct {
	log     *logger.Logger
	workers int
}

func NewBuilder(log *logger.Logger) *Builder {
	return &Builder{log: log.WithComponent("features"), workers: defaultWorkers}
}

// WithWorkers overrides the pass-1 worker count.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.workers = n
	}
	return b
}

// Build recomputes the full feature table from scratch. bars maps code
// to its history; events may be nil. All dates must be normalized to
// midnight in one location (the store and vendor layers guarantee
// this). Rows after the cutoff are dropped before any window is
// evaluated, so no future observation can leak into a feature.
func (b *Builder) Build(ctx context.Context, bars map[string][]*contracts.Bar, events []contracts.Event, cutoff time.Time) (*contracts.FeatureTable, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("feature build: %w", ErrEmptyUniverse)
	}
	start := time.Now()

	codes := make([]string, 0, len(bars))
	for c := range bars {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	eventsByCode := make(map[string][]contracts.Event)
	for _, e := range events {
		eventsByCode[e.Code] = append(eventsByCode[e.Code], e)
	}

	frames, err := b.buildFrames(ctx, codes, bars, eventsByCode, cutoff)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("feature build: no bars at or before cutoff %s: %w", cutoff.Format("2006-01-02"), ErrEmptyUniverse)
	}

	regimes := applyCrossSection(frames)
	table := assemble(frames, regimes, cutoff)

	b.log.WithFields(map[string]interface{}{
		"codes":   len(frames),
		"rows":    len(table.Rows),
		"cutoff":  cutoff.Format("2006-01-02"),
		"elapsed": time.Since(start).String(),
	}).Info("Feature table built")
	return table, nil
}

// buildFrames fans the per-instrument pass out over a worker pool and
// reassembles the results in code order.
func (b *Builder) buildFrames(ctx context.Context, codes []string, bars map[string][]*contracts.Bar, eventsByCode map[string][]contracts.Event, cutoff time.Time) ([]*frame, error) {
	type result struct {
		code string
		f    *frame
	}

	codeCh := make(chan string, len(codes))
	resCh := make(chan result, len(codes))

	var wg sync.WaitGroup
	for w := 0; w < b.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range codeCh {
				select {
				case <-ctx.Done():
					resCh <- result{code: code}
					continue
				default:
				}
				history := trimToCutoff(bars[code], cutoff)
				if len(history) == 0 {
					resCh <- result{code: code}
					continue
				}
				f := buildTickerFrame(code, history)
				applyEventFeatures(f, eventsByCode[code])
				applyPlaceholders(f)
				markStale(f, cutoff)
				resCh <- result{code: code, f: f}
			}
		}()
	}
	for _, c := range codes {
		codeCh <- c
	}
	close(codeCh)

	go func() {
		wg.Wait()
		close(resCh)
	}()

	built := make(map[string]*frame, len(codes))
	for r := range resCh {
		if r.f != nil {
			built[r.code] = r.f
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frames := make([]*frame, 0, len(built))
	for _, c := range codes {
		if f, ok := built[c]; ok {
			frames = append(frames, f)
		}
	}
	return frames, nil
}

// trimToCutoff drops bars after the cutoff and orders the rest
// ascending. Vendors can deliver pages out of order, so ordering is
// re-established here rather than assumed.
func trimToCutoff(bars []*contracts.Bar, cutoff time.Time) []*contracts.Bar {
	out := make([]*contracts.Bar, 0, len(bars))
	for _, bar := range bars {
		if !bar.Date.After(cutoff) {
			out = append(out, bar)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// applyPlaceholders fills the columns waiting on a filings source.
func applyPlaceholders(f *frame) {
	f.set("op_margin_yoy", nanSlice(f.n()))
	f.flagAll(contracts.FlagNoStatements)
	f.constCol("guidance_up_flag", 0)
}

// markStale flags the whole history of a code whose data ends well
// before the cutoff and materializes the data_stale_flag column.
func markStale(f *frame, cutoff time.Time) {
	last := f.dates[f.n()-1]
	stale := cutoff.Sub(last) > staleAfterDays*24*time.Hour
	if stale {
		f.flagAll(contracts.FlagStaleData)
		f.constCol("data_stale_flag", 1)
		return
	}
	f.constCol("data_stale_flag", 0)
}

// assemble converts frames into the absent-key row representation,
// ordered by (code, date).
func assemble(frames []*frame, regimes map[time.Time]string, cutoff time.Time) *contracts.FeatureTable {
	total := 0
	for _, f := range frames {
		total += f.n()
	}
	rows := make([]*contracts.FeatureRow, 0, total)
	for _, f := range frames {
		for i := range f.dates {
			row := contracts.NewFeatureRow(f.dates[i], f.code)
			for _, col := range ColumnOrder {
				if col == RegimeColumn {
					continue
				}
				arr, ok := f.cols[col]
				if !ok {
					continue
				}
				if v := arr[i]; !math.IsNaN(v) {
					row.Set(col, v)
				}
			}
			for name := range f.flags[i] {
				row.AddFlag(name)
			}
			row.Regime = regimes[f.dates[i]]
			rows = append(rows, row)
		}
	}
	return &contracts.FeatureTable{Rows: rows, Regimes: regimes, Cutoff: cutoff}
}
