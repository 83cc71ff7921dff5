package jquants

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

// dailyQuote is the vendor wire shape for one bar. Prices are nullable:
// an instrument that did not trade has a date and a code and nothing
// else.
type dailyQuote struct {
	Date            string   `json:"Date"`
	Code            string   `json:"Code"`
	Open            *float64 `json:"Open"`
	High            *float64 `json:"High"`
	Low             *float64 `json:"Low"`
	Close           *float64 `json:"Close"`
	Volume          *float64 `json:"Volume"`
	AdjustmentClose *float64 `json:"AdjustmentClose"`
}

type quotesPage struct {
	DailyQuotes   []dailyQuote `json:"daily_quotes"`
	PaginationKey string       `json:"pagination_key"`
}

func (q *dailyQuote) toBar() (*contracts.Bar, error) {
	d, err := time.ParseInLocation("2006-01-02", q.Date, calendar.JST)
	if err != nil {
		return nil, fmt.Errorf("parse quote date %q: %w", q.Date, err)
	}
	return &contracts.Bar{
		Date:      d,
		Code:      q.Code,
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Close,
		Volume:    q.Volume,
		AdjClose:  q.AdjustmentClose,
		Suspended: q.Close == nil && q.Volume == nil,
	}, nil
}

// QuotesForDate drains every page of daily quotes for one trade date.
func (c *Client) QuotesForDate(ctx context.Context, day time.Time) ([]*contracts.Bar, error) {
	date := day.Format("2006-01-02")
	var bars []*contracts.Bar
	pageKey := ""
	for {
		page, err := c.quotesPage(ctx, date, pageKey)
		if err != nil {
			return nil, err
		}
		for i := range page.DailyQuotes {
			b, err := page.DailyQuotes[i].toBar()
			if err != nil {
				c.logger.WithError(err).WithField("code", page.DailyQuotes[i].Code).Warn("Skipping malformed quote")
				continue
			}
			bars = append(bars, b)
		}
		if page.PaginationKey == "" {
			break
		}
		pageKey = page.PaginationKey
	}
	return bars, nil
}

// quotesPage fetches one page, serving it from the Redis cache when
// possible. Confirmed daily quotes never change, so a cache hit is
// always safe.
func (c *Client) quotesPage(ctx context.Context, date, pageKey string) (*quotesPage, error) {
	cacheKey := redis.QuotesKey(date, pageKey)
	var page quotesPage
	if hit, err := c.cache.Get(ctx, cacheKey, &page); err == nil && hit {
		return &page, nil
	}

	q := url.Values{}
	q.Set("date", date)
	if pageKey != "" {
		q.Set("pagination_key", pageKey)
	}
	if err := c.getJSON(ctx, "/prices/daily_quotes", q, &page); err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cacheKey, &page, redis.TTLDaily); err != nil {
		c.logger.WithError(err).Debug("Quotes page cache write failed")
	}
	return &page, nil
}

// FetchBars drains daily quotes for every candidate trading day in
// [from, to] and groups them per instrument, sorted by date. Holidays
// are skipped; Unknown days are queried, because a wasted call on a
// closed market is cheaper than a silently missing trading day.
func (c *Client) FetchBars(ctx context.Context, from, to time.Time) (map[string][]*contracts.Bar, error) {
	start := time.Now()
	byCode := make(map[string][]*contracts.Bar)
	days, rows := 0, 0

	for d := calendar.Date(from); !d.After(calendar.Date(to)); d = d.AddDate(0, 0, 1) {
		if c.cal.Resolve(d) == calendar.Holiday {
			continue
		}
		bars, err := c.QuotesForDate(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("daily quotes for %s: %w", d.Format("2006-01-02"), err)
		}
		for _, b := range bars {
			byCode[b.Code] = append(byCode[b.Code], b)
		}
		days++
		rows += len(bars)
	}

	if rows == 0 {
		return nil, fmt.Errorf("%s to %s: %w", from.Format("2006-01-02"), to.Format("2006-01-02"), ErrNoData)
	}
	for _, bars := range byCode {
		sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	}

	c.logger.WithFields(map[string]interface{}{
		"days":    days,
		"rows":    rows,
		"codes":   len(byCode),
		"elapsed": time.Since(start).String(),
	}).Info("Daily quotes fetched")
	return byCode, nil
}
