// Package jquants is the vendor client for daily bars, earnings
// announcements and the listed-company master. Auth is a refresh-token
// to id-token exchange; data endpoints paginate via pagination_key.
package jquants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/pkg/config"
	"github.com/hmuraoka/kabuto/pkg/httputil"
	"github.com/hmuraoka/kabuto/pkg/logger"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

// Sentinel errors surfaced to the pipeline.
var (
	// ErrAuth means the vendor rejected our credentials. Retrying
	// cannot help; the refresh token must be reissued.
	ErrAuth = errors.New("vendor rejected credentials")

	// ErrNoData means the vendor returned zero records for the
	// requested range.
	ErrNoData = errors.New("no data from vendor")
)

// Id tokens are valid for 24 hours; the buffer forces a refresh before
// an in-flight page loop can cross the expiry.
const (
	tokenTTL    = 24 * time.Hour
	tokenBuffer = 5 * time.Minute
)

const defaultRatePerSec = 5

// Client handles communication with the J-Quants API
// ⭐ SSOT: ベンダー API 呼び出しはこのクライアント経由でのみ行う
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        config.JQuantsConfig
	cal        calendar.Resolver

	limiter *rate.Limiter
	cache   *redis.Cache
	shared  *redis.RateLimiter

	// Token management
	idToken     string
	tokenExpiry time.Time
	tokenMu     sync.RWMutex
}

// NewClient creates a new vendor client. The redis client may be
// disabled; caching and the cross-process limiter then degrade to
// no-ops and only the local limiter paces requests.
func NewClient(cfg config.JQuantsConfig, httpClient *httputil.Client, rdb *redis.Client, cal calendar.Resolver, log *logger.Logger) *Client {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithComponent("jquants"),
		cfg:        cfg,
		cal:        cal,
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
		cache:      redis.NewCache(rdb, "kabuto"),
		shared:     redis.NewRateLimiter(rdb, "kabuto"),
	}
}

type tokenResponse struct {
	IDToken string `json:"idToken"`
}

// getToken returns a valid id token, exchanging the refresh token when
// the cached one is missing or near expiry.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.tokenMu.RLock()
	if c.idToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.idToken
		c.tokenMu.RUnlock()
		return token, nil
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Double-check after acquiring write lock
	if c.idToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.idToken, nil
	}

	if c.cfg.RefreshToken == "" {
		return "", fmt.Errorf("refresh token not configured: %w", ErrAuth)
	}

	u := fmt.Sprintf("%s/token/auth_refresh?refreshtoken=%s", c.cfg.BaseURL, url.QueryEscape(c.cfg.RefreshToken))
	resp, err := c.httpClient.Post(ctx, u, "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("token exchange status %d: %w", resp.StatusCode, ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token exchange status %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return "", fmt.Errorf("token exchange returned empty id token: %w", ErrAuth)
	}

	c.idToken = tr.IDToken
	c.tokenExpiry = time.Now().Add(tokenTTL - tokenBuffer)
	c.logger.Info("Vendor id token refreshed")
	return c.idToken, nil
}

// pace blocks until both the local and the shared limiter admit one
// request. The shared limiter coordinates parallel ingests through
// Redis and is a no-op when Redis is disabled.
func (c *Client) pace(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.shared.Wait(ctx, redis.JQuantsRateLimit)
}

// getJSON performs an authenticated GET against path and decodes the
// response into dest. Transient failures (429, 5xx, network) are
// retried by the HTTP client; a 401/403 is fatal.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}
	if err := c.pace(ctx); err != nil {
		return err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vendor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s status %d: %w", path, resp.StatusCode, ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
