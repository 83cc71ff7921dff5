package kabutan

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
)

const (
	earningsPath = "/warning/earnings"

	// maxCalendarPages bounds the pagination walk. The schedule for one
	// date never spans more pages than this in practice.
	maxCalendarPages = 10
)

// EarningsCalendar scrapes the announcement schedule for one date,
// following pagination until the site reports no next page.
func (c *Client) EarningsCalendar(ctx context.Context, day time.Time) ([]contracts.Event, error) {
	var events []contracts.Event
	for page := 1; page <= maxCalendarPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("date", day.Format("20060102"))
		if page > 1 {
			q.Set("page", strconv.Itoa(page))
		}
		doc, err := c.document(ctx, earningsPath, q)
		if err != nil {
			return nil, err
		}

		pageEvents, hasNext := c.parseEarnings(doc)
		events = append(events, pageEvents...)
		if !hasNext {
			break
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"date":   day.Format("2006-01-02"),
		"events": len(events),
	}).Info("Earnings calendar scraped")
	return events, nil
}

// parseEarnings extracts (code, date) rows from the schedule table and
// reports whether a next page exists.
func (c *Client) parseEarnings(doc *goquery.Document) ([]contracts.Event, bool) {
	var events []contracts.Event
	doc.Find("table.stock_table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		code := strings.TrimSpace(cells.Eq(0).Text())
		rawDate := strings.TrimSpace(cells.Eq(2).Text())
		if code == "" {
			return
		}
		d, err := time.ParseInLocation("2006/01/02", rawDate, calendar.JST)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"code": code,
				"date": rawDate,
			}).Warn("Skipping earnings row with malformed date")
			return
		}
		events = append(events, contracts.Event{Code: code, Date: d, Type: contracts.EventEarnings})
	})

	hasNext := doc.Find(`a[rel="next"]`).Length() > 0
	return events, hasNext
}
