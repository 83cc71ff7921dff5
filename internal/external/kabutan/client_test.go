package kabutan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/config"
	"github.com/hmuraoka/kabuto/pkg/httputil"
	"github.com/hmuraoka/kabuto/pkg/logger"
	"github.com/hmuraoka/kabuto/pkg/redis"
)

const earningsPage1 = `<html><body>
<table class="stock_table">
 <thead><tr><th>コード</th><th>銘柄名</th><th>発表日</th></tr></thead>
 <tbody>
  <tr><td>1301</td><td>極洋</td><td>2025/03/10</td></tr>
  <tr><td>1332</td><td>ニッスイ</td><td>2025/03/10</td></tr>
  <tr><td>9999</td><td>壊れた行</td><td>未定</td></tr>
 </tbody>
</table>
<a rel="next" href="?date=20250310&amp;page=2">次へ</a>
</body></html>`

const earningsPage2 = `<html><body>
<table class="stock_table">
 <tbody>
  <tr><td>1605</td><td>INPEX</td><td>2025/03/10</td></tr>
 </tbody>
</table>
</body></html>`

const bullishHTML = `<html><body>
<ul class="s_news_list">
 <li><time datetime="2025-03-07">03/07</time><a href="/news/?b=n20250307">明日の好材料</a>
  <span><a href="/stock/?code=1301">1301</a> <a href="/stock/?code=1332">1332</a></span></li>
 <li><a href="/news/?b=n20250306">日付なしの行</a><a href="/stock/?code=1605">1605</a></li>
 <li><time datetime="2025-03-06">03/06</time><a href="/stock/?code=7203">7203</a></li>
</ul>
</body></html>`

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	rdb, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	c := NewClient(config.KabutanConfig{BaseURL: baseURL}, httputil.New(logger.Nop()).DisableRetry(), rdb, logger.Nop())
	c.limiter = rate.NewLimiter(rate.Inf, 1) // テストを待たせない
	return c
}

func TestEarningsCalendarFollowsPagination(t *testing.T) {
	var mu sync.Mutex
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, earningsPath, r.URL.Path)
		assert.Equal(t, "20250310", r.URL.Query().Get("date"))
		assert.Contains(t, r.Header.Get("User-Agent"), "kabuto")

		page := r.URL.Query().Get("page")
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		if page == "2" {
			_, _ = w.Write([]byte(earningsPage2))
			return
		}
		_, _ = w.Write([]byte(earningsPage1))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, calendar.JST)

	events, err := c.EarningsCalendar(context.Background(), day)
	require.NoError(t, err)

	// 日付が読めない行は捨てる
	require.Len(t, events, 3)
	assert.Equal(t, "1301", events[0].Code)
	assert.Equal(t, "1332", events[1].Code)
	assert.Equal(t, "1605", events[2].Code)
	for _, e := range events {
		assert.Equal(t, contracts.EventEarnings, e.Type)
		assert.True(t, e.Date.Equal(day))
	}
	assert.Equal(t, []string{"", "2"}, pages)
}

func TestEarningsCalendarEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>該当なし</p></body></html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.EarningsCalendar(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, calendar.JST))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEarningsCalendarServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.EarningsCalendar(context.Background(), time.Date(2025, 3, 10, 0, 0, 0, 0, calendar.JST))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestBullishNewsParsesCodesPerItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, bullishPath, r.URL.Path)
		_, _ = w.Write([]byte(bullishHTML))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	events, err := c.BullishNews(context.Background())
	require.NoError(t, err)

	// datetime の無い行はスキップ
	require.Len(t, events, 3)
	assert.Equal(t, "1301", events[0].Code)
	assert.Equal(t, "1332", events[1].Code)
	assert.Equal(t, "7203", events[2].Code)
	assert.True(t, events[0].Date.Equal(time.Date(2025, 3, 7, 0, 0, 0, 0, calendar.JST)))
	assert.True(t, events[2].Date.Equal(time.Date(2025, 3, 6, 0, 0, 0, 0, calendar.JST)))
	for _, e := range events {
		assert.Equal(t, contracts.EventBullish, e.Type)
	}
}
