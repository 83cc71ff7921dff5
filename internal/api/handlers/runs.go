package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hmuraoka/kabuto/internal/contracts"
	"github.com/hmuraoka/kabuto/internal/store"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

const defaultListLimit = 50

// tradeDatePattern validates path dates before they reach the store.
var tradeDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RunStore is the slice of the run ledger the API reads.
type RunStore interface {
	List(ctx context.Context, limit int) ([]contracts.RunRecord, error)
	Card(ctx context.Context, tradeDate string) (json.RawMessage, error)
	Quality(ctx context.Context, tradeDate string) (json.RawMessage, error)
}

// WatchlistStore loads the persisted watchlist for a trade date.
type WatchlistStore interface {
	Load(ctx context.Context, tradeDate string) ([]contracts.WatchlistEntry, error)
}

// RunsHandler serves run ledger entries and stored artifacts
// ⭐ SSOT: 実行履歴 API ハンドラはこの構造体のみ
type RunsHandler struct {
	runs       RunStore
	watchlists WatchlistStore
	logger     *logger.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runs RunStore, watchlists WatchlistStore, log *logger.Logger) *RunsHandler {
	return &RunsHandler{
		runs:       runs,
		watchlists: watchlists,
		logger:     log,
	}
}

// List returns the most recent runs, newest first
// GET /api/runs?limit=N
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "Invalid limit (valid: 1-500)")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []contracts.RunRecord{}
	}

	respondJSON(w, http.StatusOK, runs)
}

// Card returns the decision card of the latest completed run for a date.
// Failed or NO_TRADE-without-artifact dates report 404.
// GET /api/runs/{trade_date}
func (h *RunsHandler) Card(w http.ResponseWriter, r *http.Request) {
	h.artifact(w, r, h.runs.Card)
}

// Quality returns the stored quality report for a date
// GET /api/runs/{trade_date}/quality
func (h *RunsHandler) Quality(w http.ResponseWriter, r *http.Request) {
	h.artifact(w, r, h.runs.Quality)
}

// Watchlist returns the persisted watchlist entries for a date
// GET /api/watchlist/{trade_date}
func (h *RunsHandler) Watchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tradeDate, ok := h.tradeDate(w, r)
	if !ok {
		return
	}

	entries, err := h.watchlists.Load(ctx, tradeDate)
	if err != nil {
		h.logger.WithError(err).WithField("trade_date", tradeDate).Error("Failed to load watchlist")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve watchlist")
		return
	}
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, "No watchlist for "+tradeDate)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// artifact fetches a stored JSON document and relays it verbatim. The
// documents were validated on write, so they are not re-decoded here.
func (h *RunsHandler) artifact(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) (json.RawMessage, error)) {
	ctx := r.Context()

	tradeDate, ok := h.tradeDate(w, r)
	if !ok {
		return
	}

	raw, err := fetch(ctx, tradeDate)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "No artifact for "+tradeDate)
			return
		}
		h.logger.WithError(err).WithField("trade_date", tradeDate).Error("Failed to load artifact")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve artifact")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func (h *RunsHandler) tradeDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	tradeDate := mux.Vars(r)["trade_date"]
	if !tradeDatePattern.MatchString(tradeDate) {
		respondError(w, http.StatusBadRequest, "Invalid trade_date (expected YYYY-MM-DD)")
		return "", false
	}
	return tradeDate, true
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
