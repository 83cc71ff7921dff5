package kabutan

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
)

const bullishPath = "/news/bullish"

// BullishNews scrapes the latest positive-news list and emits one
// bullish event per mentioned instrument. The list covers recent days
// only; callers merge it into the event history they already hold.
func (c *Client) BullishNews(ctx context.Context) ([]contracts.Event, error) {
	doc, err := c.document(ctx, bullishPath, nil)
	if err != nil {
		return nil, err
	}

	var events []contracts.Event
	doc.Find("ul.s_news_list li").Each(func(_ int, item *goquery.Selection) {
		raw, ok := item.Find("time").Attr("datetime")
		if !ok {
			return
		}
		d, err := time.ParseInLocation("2006-01-02", raw, calendar.JST)
		if err != nil {
			return
		}
		item.Find(`a[href*="/stock/?code="]`).Each(func(_ int, a *goquery.Selection) {
			code := strings.TrimSpace(a.Text())
			if code == "" {
				return
			}
			events = append(events, contracts.Event{Code: code, Date: d, Type: contracts.EventBullish})
		})
	})

	c.logger.WithField("events", len(events)).Info("Bullish news scraped")
	return events, nil
}
