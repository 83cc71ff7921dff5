package jquants

import (
	"context"
	"net/url"
	"time"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

type announcement struct {
	Date        string `json:"Date"`
	Code        string `json:"Code"`
	CompanyName string `json:"CompanyName"`
}

type announcementsPage struct {
	Announcement  []announcement `json:"announcement"`
	PaginationKey string         `json:"pagination_key"`
}

// Announcements drains the earnings-announcement schedule and maps it
// to dated events. An empty schedule is a valid result, not an error;
// the feature builder treats absent events as "no event".
func (c *Client) Announcements(ctx context.Context) ([]contracts.Event, error) {
	var events []contracts.Event
	pageKey := ""
	for {
		page, err := c.announcementsPage(ctx, pageKey)
		if err != nil {
			return nil, err
		}
		for _, a := range page.Announcement {
			d, err := time.ParseInLocation("2006-01-02", a.Date, calendar.JST)
			if err != nil {
				c.logger.WithField("date", a.Date).Warn("Skipping announcement with malformed date")
				continue
			}
			events = append(events, contracts.Event{Code: a.Code, Date: d, Type: contracts.EventEarnings})
		}
		if page.PaginationKey == "" {
			break
		}
		pageKey = page.PaginationKey
	}

	c.logger.WithField("events", len(events)).Info("Announcements fetched")
	return events, nil
}

func (c *Client) announcementsPage(ctx context.Context, pageKey string) (*announcementsPage, error) {
	cacheKey := redis.AnnouncementsKey(pageKey)
	var page announcementsPage
	if hit, err := c.cache.Get(ctx, cacheKey, &page); err == nil && hit {
		return &page, nil
	}

	q := url.Values{}
	if pageKey != "" {
		q.Set("pagination_key", pageKey)
	}
	if err := c.getJSON(ctx, "/fins/announcement", q, &page); err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cacheKey, &page, redis.TTLDaily); err != nil {
		c.logger.WithError(err).Debug("Announcements page cache write failed")
	}
	return &page, nil
}
