// Package kabutan scrapes public market pages for corporate events. It
// backs the event features when the vendor announcement endpoint yields
// nothing, so a thin vendor day does not silently blank the event
// columns.
package kabutan

import (
	"fmt"
	"net/http"
	"net/url"

	"context"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/hmuraoka/kabuto/pkg/config"
	"github.com/hmuraoka/kabuto/pkg/httputil"
	"github.com/hmuraoka/kabuto/pkg/logger"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

// scraperUserAgent identifies us to the site operator.
const scraperUserAgent = "kabuto/1.0 (daily pipeline; contact: ops@kabuto.local)"

// Client scrapes the public pages of the configured host.
// ⭐ SSOT: スクレイピングはこのクライアント経由でのみ行う
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string

	limiter *rate.Limiter
	shared  *redis.RateLimiter
}

// NewClient creates a scraper client. Pacing is fixed at one request
// per second; scraping a public page faster than a human reads it is
// how you get blocked.
func NewClient(cfg config.KabutanConfig, httpClient *httputil.Client, rdb *redis.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithComponent("kabutan"),
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		shared:     redis.NewRateLimiter(rdb, "kabuto"),
	}
}

func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.shared.Wait(ctx, redis.KabutanRateLimit)
}

// document fetches one page and hands it to goquery.
func (c *Client) document(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s status %d", path, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
