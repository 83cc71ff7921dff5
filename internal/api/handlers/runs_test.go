package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/store"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

type fakeRunStore struct {
	runs      []contracts.RunRecord
	listErr   error
	cards     map[string]json.RawMessage
	qualities map[string]json.RawMessage
	lastLimit int
}

func (f *fakeRunStore) List(_ context.Context, limit int) ([]contracts.RunRecord, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRunStore) Card(_ context.Context, tradeDate string) (json.RawMessage, error) {
	return f.artifact(f.cards, tradeDate)
}

func (f *fakeRunStore) Quality(_ context.Context, tradeDate string) (json.RawMessage, error) {
	return f.artifact(f.qualities, tradeDate)
}

func (f *fakeRunStore) artifact(m map[string]json.RawMessage, tradeDate string) (json.RawMessage, error) {
	raw, ok := m[tradeDate]
	if !ok {
		return nil, fmt.Errorf("artifact for %s: %w", tradeDate, store.ErrNotFound)
	}
	return raw, nil
}

type fakeWatchlistStore struct {
	entries map[string][]contracts.WatchlistEntry
	loadErr error
}

func (f *fakeWatchlistStore) Load(_ context.Context, tradeDate string) ([]contracts.WatchlistEntry, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.entries[tradeDate], nil
}

// testRouter registers the handler under the same paths the API router
// uses, so mux path variables resolve the same way.
func testRouter(h *RunsHandler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/runs", h.List).Methods("GET")
	r.HandleFunc("/api/runs/{trade_date}", h.Card).Methods("GET")
	r.HandleFunc("/api/runs/{trade_date}/quality", h.Quality).Methods("GET")
	r.HandleFunc("/api/watchlist/{trade_date}", h.Watchlist).Methods("GET")
	return r
}

func doGet(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRuns(t *testing.T) {
	started := time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)
	fr := &fakeRunStore{
		runs: []contracts.RunRecord{
			{RunID: "20250307T093000-aaaaaaaa", TradeDate: "2025-03-10", Action: contracts.ActionTrade, Status: contracts.RunCompleted, StartedAt: started},
			{RunID: "20250306T093000-bbbbbbbb", TradeDate: "2025-03-07", Action: contracts.ActionNoTrade, Status: contracts.RunCompleted, StartedAt: started.AddDate(0, 0, -1)},
		},
	}
	h := NewRunsHandler(fr, &fakeWatchlistStore{}, logger.Nop())
	router := testRouter(h)

	rec := doGet(t, router, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, defaultListLimit, fr.lastLimit)

	var got []contracts.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "20250307T093000-aaaaaaaa", got[0].RunID)
	require.Equal(t, contracts.ActionTrade, got[0].Action)

	rec = doGet(t, router, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{}, &fakeWatchlistStore{}, logger.Nop())
	router := testRouter(h)

	for _, limit := range []string{"0", "-3", "501", "abc"} {
		rec := doGet(t, router, "/api/runs?limit="+limit)
		require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestListRunsEmptyLedgerIsArray(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{}, &fakeWatchlistStore{}, logger.Nop())
	rec := doGet(t, testRouter(h), "/api/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	// null だと困るクライアントがいるので空配列を返す
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestListRunsStoreFailure(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{listErr: errors.New("connection refused")}, &fakeWatchlistStore{}, logger.Nop())
	rec := doGet(t, testRouter(h), "/api/runs")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["error"], "Failed to retrieve runs")
}

func TestCardPassesStoredJSONThrough(t *testing.T) {
	raw := json.RawMessage(`{"trade_date":"2025-03-10","action":"TRADE","confidence":0.6421}`)
	fr := &fakeRunStore{cards: map[string]json.RawMessage{"2025-03-10": raw}}
	h := NewRunsHandler(fr, &fakeWatchlistStore{}, logger.Nop())
	router := testRouter(h)

	rec := doGet(t, router, "/api/runs/2025-03-10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, string(raw), rec.Body.String())
}

func TestQualityEndpoint(t *testing.T) {
	raw := json.RawMessage(`{"gates":[{"name":"wfic_floor","passed":true}],"all_passed":true}`)
	fr := &fakeRunStore{qualities: map[string]json.RawMessage{"2025-03-10": raw}}
	h := NewRunsHandler(fr, &fakeWatchlistStore{}, logger.Nop())

	rec := doGet(t, testRouter(h), "/api/runs/2025-03-10/quality")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(raw), rec.Body.String())
}

func TestArtifactUnknownDateIs404(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{}, &fakeWatchlistStore{}, logger.Nop())
	router := testRouter(h)

	for _, path := range []string{"/api/runs/2025-03-10", "/api/runs/2025-03-10/quality"} {
		rec := doGet(t, router, path)
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// ErrNotFound 以外はサーバエラー扱い
func TestArtifactStoreFailureIs500(t *testing.T) {
	h := NewRunsHandler(failingRunStore{}, &fakeWatchlistStore{}, logger.Nop())

	rec := doGet(t, testRouter(h), "/api/runs/2025-03-10")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingRunStore struct{}

func (failingRunStore) List(context.Context, int) ([]contracts.RunRecord, error) {
	return nil, errors.New("down")
}

func (failingRunStore) Card(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("down")
}

func (failingRunStore) Quality(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("down")
}

func TestTradeDateValidation(t *testing.T) {
	h := NewRunsHandler(&fakeRunStore{}, &fakeWatchlistStore{}, logger.Nop())
	router := testRouter(h)

	bad := []string{
		"/api/runs/20250310",
		"/api/runs/2025-3-10",
		"/api/runs/next-monday",
		"/api/watchlist/2025_03_10",
	}
	for _, path := range bad {
		rec := doGet(t, router, path)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestWatchlistEndpoint(t *testing.T) {
	fw := &fakeWatchlistStore{entries: map[string][]contracts.WatchlistEntry{
		"2025-03-10": {
			{Code: "7203", Name: "トヨタ自動車", Score: 0.82, IsNew: true},
			{Code: "6758", Name: "ソニーグループ", Score: 0.61, TurnoverPenalty: 0.01},
		},
	}}
	h := NewRunsHandler(&fakeRunStore{}, fw, logger.Nop())
	router := testRouter(h)

	rec := doGet(t, router, "/api/watchlist/2025-03-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []contracts.WatchlistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "7203", got[0].Code)
	require.True(t, got[0].IsNew)

	rec = doGet(t, router, "/api/watchlist/2025-03-11")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
