// Package pipeline orchestrates one gated daily run: assemble inputs,
// build features, fit the predictor, evaluate the quality gates,
// rotate the watchlist, write the decision artifacts and deliver the
// notification. Stage progress is published for live monitoring.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/notify"
	"github.com/hmuraoka/kabuto/internal/store"
	"github.com/hmuraoka/kabuto/internal/strategyconfig"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// ErrNoBars reports an empty bar window. The run stops before any
// stage starts; there is nothing to compute over.
var ErrNoBars = errors.New("no bars in lookback window")

const defaultLookbackDays = 365

// BarSource delivers daily bars, vendor announcements and display
// names. The vendor client and the deterministic demo source both
// satisfy it.
type BarSource interface {
	FetchBars(ctx context.Context, from, to time.Time) (map[string][]*contracts.Bar, error)
	Announcements(ctx context.Context) ([]contracts.Event, error)
	ListedNames(ctx context.Context) (map[string]string, error)
}

// EventSource supplies scraped events when the vendor announcement
// endpoint yields nothing.
type EventSource interface {
	EarningsCalendar(ctx context.Context, day time.Time) ([]contracts.Event, error)
	BullishNews(ctx context.Context) ([]contracts.Event, error)
}

// ProgressSink receives stage progress as the runner advances. The
// API hub implements it; a nil sink drops events.
type ProgressSink interface {
	Publish(ev contracts.ProgressEvent)
}

// Runner coordinates the full daily pipeline.
// ⭐ SSOT: ステージの実行順序と台帳の更新はここだけ
type Runner struct {
	st       *store.Store // nil runs straight from the source, without ledger or lock
	bars     BarSource    // nil runs from the store only
	events   EventSource  // optional scraped fallback
	notifier *notify.Notifier
	cal      calendar.Resolver
	strategy *strategyconfig.Config
	outBase  string
	lookback int
	sink     ProgressSink
	log      *logger.Logger
}

// NewRunner wires the runner. st and bars may each be nil, but not
// both: a run needs at least one place to read bars from.
func NewRunner(
	st *store.Store,
	bars BarSource,
	events EventSource,
	notifier *notify.Notifier,
	cal calendar.Resolver,
	strategy *strategyconfig.Config,
	outBase string,
	log *logger.Logger,
) *Runner {
	return &Runner{
		st:       st,
		bars:     bars,
		events:   events,
		notifier: notifier,
		cal:      cal,
		strategy: strategy,
		outBase:  outBase,
		lookback: defaultLookbackDays,
		log:      log.WithComponent("pipeline"),
	}
}

// WithLookback overrides the bar history window in days.
func (r *Runner) WithLookback(days int) *Runner {
	if days > 0 {
		r.lookback = days
	}
	return r
}

// WithProgress attaches a progress sink.
func (r *Runner) WithProgress(sink ProgressSink) *Runner {
	r.sink = sink
	return r
}

// RunOptions selects what one run sees.
type RunOptions struct {
	// AsOf bounds the input window; zero means now in JST.
	AsOf time.Time
	// Refresh pulls the vendor tail into the store before computing.
	// Ignored when no source or no store is bound.
	Refresh bool
}

// Inputs is the assembled input set for one run. Everything a run
// computes is a function of these values.
type Inputs struct {
	Bars      map[string][]*contracts.Bar
	Events    []contracts.Event
	Prior     []string // prior watchlist codes, nil on the first rotation
	Cutoff    time.Time
	TradeDate time.Time
}

// LoadInputs assembles the input set as of asOf. With a store bound it
// reads only the store; otherwise it pulls the window straight from
// the source.
func (r *Runner) LoadInputs(ctx context.Context, asOf time.Time) (*Inputs, error) {
	from := calendar.Date(asOf.AddDate(0, 0, -r.lookback))
	to := calendar.Date(asOf)

	var (
		bars   map[string][]*contracts.Bar
		events []contracts.Event
		err    error
	)
	switch {
	case r.st != nil:
		bars, err = r.st.Bars.LoadRange(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load bars: %w", err)
		}
		events, err = r.st.Events.LoadRange(ctx, from, to)
		if err != nil {
			// Events are an optional input; a run without them is
			// degraded, not dead.
			r.log.WithError(err).Warn("Failed to load events, continuing without")
			events = nil
		}
	case r.bars != nil:
		bars, err = r.bars.FetchBars(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetch bars: %w", err)
		}
		var broken int
		if bars, broken = sanitizeBars(bars); broken > 0 {
			r.log.WithField("dropped", broken).Warn("Rejected broken vendor bars")
		}
		events, err = r.bars.Announcements(ctx)
		if err != nil {
			r.log.WithError(err).Warn("Failed to fetch announcements, continuing without")
			events = nil
		}
	default:
		return nil, fmt.Errorf("runner has neither store nor source")
	}

	cutoff, ok := latestBarDate(bars)
	if !ok {
		return nil, fmt.Errorf("window %s..%s: %w", from.Format("2006-01-02"), to.Format("2006-01-02"), ErrNoBars)
	}

	in := &Inputs{
		Bars:      bars,
		Events:    events,
		Cutoff:    cutoff,
		TradeDate: calendar.NextTradeDate(cutoff, r.cal),
	}

	if r.st != nil {
		prior, err := r.st.Watchlists.LoadLatestBefore(ctx, in.TradeDate.Format("2006-01-02"))
		if err != nil {
			return nil, fmt.Errorf("load prior watchlist: %w", err)
		}
		in.Prior = prior
	}
	return in, nil
}

// latestBarDate finds the newest bar date across all codes.
func latestBarDate(bars map[string][]*contracts.Bar) (time.Time, bool) {
	var last time.Time
	found := false
	for _, series := range bars {
		for _, b := range series {
			if !found || b.Date.After(last) {
				last = b.Date
				found = true
			}
		}
	}
	return last, found
}

// fetchNames pulls display names from the source. Cosmetic: any
// failure degrades to bare codes.
func (r *Runner) fetchNames(ctx context.Context) map[string]string {
	if r.bars == nil {
		return nil
	}
	names, err := r.bars.ListedNames(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Failed to fetch listed names, using codes")
		return nil
	}
	return names
}

// newRunID builds a sortable run identifier: UTC timestamp plus a
// short random suffix.
func newRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
}

func (r *Runner) emit(runID string, tradeDate time.Time, stage contracts.Stage, status contracts.ProgressStatus, detail string) {
	if r.sink == nil {
		return
	}
	r.sink.Publish(contracts.ProgressEvent{
		RunID:     runID,
		TradeDate: tradeDate.Format("2006-01-02"),
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
}
