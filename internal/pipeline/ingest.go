package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/store"
)

// IngestResult summarizes one ingest pass.
type IngestResult struct {
	From    time.Time
	To      time.Time
	Codes   int
	Bars    int
	Events  int
	Dropped int // structurally broken vendor bars rejected before storage
}

// Ingest pulls the vendor window into the store. A zero from resumes
// one day after the newest stored bar, or covers the full lookback
// window when the store is empty. A zero to means now in JST.
func (r *Runner) Ingest(ctx context.Context, from, to time.Time) (*IngestResult, error) {
	if r.st == nil {
		return nil, fmt.Errorf("ingest requires a store")
	}
	if r.bars == nil {
		return nil, fmt.Errorf("ingest requires a source")
	}

	if to.IsZero() {
		to = time.Now().In(calendar.JST)
	}
	if from.IsZero() {
		latest, err := r.st.Bars.LatestDate(ctx)
		switch {
		case err == nil:
			from = latest.AddDate(0, 0, 1)
		case errors.Is(err, store.ErrNotFound):
			from = to.AddDate(0, 0, -r.lookback)
		default:
			return nil, fmt.Errorf("resolve ingest window: %w", err)
		}
	}
	from = calendar.Date(from)
	to = calendar.Date(to)

	res := &IngestResult{From: from, To: to}
	if from.After(to) {
		r.log.WithField("latest", from.AddDate(0, 0, -1).Format("2006-01-02")).Info("Store already current")
		return res, nil
	}

	bars, err := r.bars.FetchBars(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	bars, res.Dropped = sanitizeBars(bars)
	if res.Dropped > 0 {
		r.log.WithField("dropped", res.Dropped).Warn("Rejected broken vendor bars")
	}
	n, err := r.st.Bars.UpsertBatch(ctx, flatten(bars))
	if err != nil {
		return nil, fmt.Errorf("store bars: %w", err)
	}
	res.Codes = len(bars)
	res.Bars = n

	events := r.collectEvents(ctx, to)
	if len(events) > 0 {
		nEvents, err := r.st.Events.UpsertBatch(ctx, events)
		if err != nil {
			// Bars are already in; a run without events is degraded,
			// not dead.
			r.log.WithError(err).Warn("Failed to store events")
		} else {
			res.Events = nEvents
		}
	}

	r.log.WithFields(map[string]interface{}{
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"codes":  res.Codes,
		"bars":   res.Bars,
		"events": res.Events,
	}).Info("Ingest completed")
	return res, nil
}

// collectEvents prefers vendor announcements and falls back to the
// scraper only when the vendor yields nothing.
func (r *Runner) collectEvents(ctx context.Context, asOf time.Time) []contracts.Event {
	events, err := r.bars.Announcements(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Vendor announcements failed")
		events = nil
	}
	if len(events) > 0 || r.events == nil {
		return events
	}

	day := calendar.NextTradeDate(asOf, r.cal)
	earnings, err := r.events.EarningsCalendar(ctx, day)
	if err != nil {
		r.log.WithError(err).Warn("Earnings calendar scrape failed")
	} else {
		events = append(events, earnings...)
	}
	bullish, err := r.events.BullishNews(ctx)
	if err != nil {
		r.log.WithError(err).Warn("Bullish news scrape failed")
	} else {
		events = append(events, bullish...)
	}
	return events
}

// flatten orders the fetched bars by code so batch writes stay
// deterministic.
func flatten(bars map[string][]*contracts.Bar) []*contracts.Bar {
	codes := make([]string, 0, len(bars))
	total := 0
	for code, series := range bars {
		codes = append(codes, code)
		total += len(series)
	}
	sort.Strings(codes)

	out := make([]*contracts.Bar, 0, total)
	for _, code := range codes {
		out = append(out, bars[code]...)
	}
	return out
}
