package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/pkg/database"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

func TestLockKeyDeterministic(t *testing.T) {
	a := lockKey("2025-03-03")
	b := lockKey("2025-03-03")
	c := lockKey("2025-03-04")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotZero(t, a)
}

// testStore connects to the database named by KABUTO_TEST_DATABASE_URL
// and ensures the schema. Tests using it are skipped when the variable
// is unset.
func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("KABUTO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KABUTO_TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "database connection failed")
	t.Cleanup(pool.Close)

	st := New(&database.DB{Pool: pool}, logger.Nop())
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func f64(v float64) *float64 { return &v }

// testDateBase is fixed once per process so that offsets stay adjacent
// within a run while separate runs land on separate date ranges.
var testDateBase = int(time.Now().UnixNano() % 3000)

func testDate(t *testing.T, offset int) string {
	t.Helper()
	base := time.Date(1990, 1, 1, 0, 0, 0, 0, calendar.JST)
	return base.AddDate(0, 0, testDateBase*50+offset).Format("2006-01-02")
}

func TestBarsRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	td := testDate(t, 0)
	day, err := time.ParseInLocation("2006-01-02", td, calendar.JST)
	require.NoError(t, err)

	bars := []*contracts.Bar{
		{
			Date: day, Code: "1301",
			Open: f64(100), High: f64(105), Low: f64(99), Close: f64(104),
			Volume: f64(12345), AdjClose: f64(104),
		},
		{
			// 売買停止日はすべて NULL のまま保存する
			Date: day, Code: "1332", Suspended: true,
		},
	}

	n, err := st.Bars.UpsertBatch(ctx, bars)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Upsert again with a revised close; the row count stays the same.
	bars[0].Close = f64(106)
	_, err = st.Bars.UpsertBatch(ctx, bars)
	require.NoError(t, err)

	byCode, err := st.Bars.LoadRange(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, byCode["1301"], 1)
	require.Len(t, byCode["1332"], 1)

	got := byCode["1301"][0]
	assert.True(t, got.Date.Equal(day), "dates must come back JST-midnight")
	require.NotNil(t, got.Close)
	assert.Equal(t, 106.0, *got.Close)

	halt := byCode["1332"][0]
	assert.True(t, halt.Suspended)
	assert.Nil(t, halt.Close)
	assert.Nil(t, halt.Volume)

	latest, err := st.Bars.LatestDate(ctx)
	require.NoError(t, err)
	assert.False(t, latest.Before(day))
}

func TestEventsDeduplicate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	td := testDate(t, 10)
	day, err := time.ParseInLocation("2006-01-02", td, calendar.JST)
	require.NoError(t, err)

	events := []contracts.Event{
		{Code: "1301", Date: day, Type: contracts.EventEarnings},
		{Code: "1301", Date: day, Type: contracts.EventEarnings},
		{Code: "1301", Date: day, Type: contracts.EventBullish},
	}

	_, err = st.Events.UpsertBatch(ctx, events)
	require.NoError(t, err)
	// Re-scraping the same window must be harmless.
	_, err = st.Events.UpsertBatch(ctx, events)
	require.NoError(t, err)

	got, err := st.Events.LoadRange(ctx, day, day)
	require.NoError(t, err)

	var mine []contracts.Event
	for _, ev := range got {
		if ev.Code == "1301" && ev.Date.Equal(day) {
			mine = append(mine, ev)
		}
	}
	assert.Len(t, mine, 2)
}

func TestWatchlistSaveLoadRotate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	prev := testDate(t, 20)
	next := testDate(t, 21)

	first := []contracts.WatchlistEntry{
		{Code: "1301", Name: "極洋", Score: 1.5, ReasonShort: "rs 20d", IsNew: true},
		{Code: "1332", Score: 1.1, ReasonShort: "trend 60d", IsNew: true},
	}
	require.NoError(t, st.Watchlists.Save(ctx, prev, first))

	got, err := st.Watchlists.Load(ctx, prev)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1301", got[0].Code)
	assert.Equal(t, "極洋", got[0].Name)
	assert.True(t, got[1].IsNew)

	// Saving again replaces the whole set, never appends.
	second := []contracts.WatchlistEntry{
		{Code: "1605", Score: 2.0, ReasonShort: "composite"},
	}
	require.NoError(t, st.Watchlists.Save(ctx, prev, second))
	got, err = st.Watchlists.Load(ctx, prev)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1605", got[0].Code)

	codes, err := st.Watchlists.LoadLatestBefore(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"1605"}, codes)

	empty, err := st.Watchlists.Load(ctx, "1970-01-02")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRunLedgerAndArtifacts(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	td := testDate(t, 30)
	runID := fmt.Sprintf("%s-%08x", time.Now().UTC().Format("20060102T150405"), time.Now().UnixNano()&0xffffffff)

	rec := &contracts.RunRecord{
		RunID:     runID,
		TradeDate: td,
		Status:    contracts.RunRunning,
		StartedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, st.Runs.Start(ctx, rec))

	card := &contracts.DecisionCard{
		SchemaVersion: "2",
		TradeDate:     td,
		RunID:         runID,
		Action:        contracts.ActionNoTrade,
		NoTradeReasons: []string{
			"missing_rate 0.2100 > 0.05",
		},
	}
	quality := &contracts.QualityReport{
		TradeDate: td,
		RunID:     runID,
		AllPassed: false,
	}

	finished := time.Now().UTC().Truncate(time.Microsecond)
	rec.Status = contracts.RunCompleted
	rec.Action = contracts.ActionNoTrade
	rec.FinishedAt = &finished
	require.NoError(t, st.Runs.Finish(ctx, rec, card, quality))

	latest, err := st.Runs.LatestByTradeDate(ctx, td)
	require.NoError(t, err)
	assert.Equal(t, runID, latest.RunID)
	assert.Equal(t, td, latest.TradeDate)
	assert.Equal(t, contracts.RunCompleted, latest.Status)
	assert.Equal(t, contracts.ActionNoTrade, latest.Action)
	assert.Empty(t, latest.Error)
	require.NotNil(t, latest.FinishedAt)

	runs, err := st.Runs.List(ctx, 100)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.RunID == runID {
			found = true
		}
	}
	assert.True(t, found)

	raw, err := st.Runs.Card(ctx, td)
	require.NoError(t, err)
	var gotCard contracts.DecisionCard
	require.NoError(t, json.Unmarshal(raw, &gotCard))
	assert.Equal(t, card.NoTradeReasons, gotCard.NoTradeReasons)

	rawQ, err := st.Runs.Quality(ctx, td)
	require.NoError(t, err)
	var gotQ contracts.QualityReport
	require.NoError(t, json.Unmarshal(rawQ, &gotQ))
	assert.False(t, gotQ.AllPassed)

	_, err = st.Runs.Card(ctx, "1970-01-02")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunLockMutualExclusion(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	td := testDate(t, 40)

	lock, err := st.AcquireRunLock(ctx, td)
	require.NoError(t, err)

	_, err = st.AcquireRunLock(ctx, td)
	assert.True(t, errors.Is(err, ErrRunLocked))

	// A different trade date is a different lock.
	other, err := st.AcquireRunLock(ctx, testDate(t, 41))
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))

	again, err := st.AcquireRunLock(ctx, td)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
