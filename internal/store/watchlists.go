package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// WatchlistRepository persists the selected set per trade date.
// ⭐ SSOT: watchlists テーブルの読み書きはここだけ
type WatchlistRepository struct {
	pool *pgxpool.Pool
}

// NewWatchlistRepository creates a new watchlist repository.
func NewWatchlistRepository(pool *pgxpool.Pool) *WatchlistRepository {
	return &WatchlistRepository{pool: pool}
}

// Save replaces the stored set for tradeDate with entries, keeping the
// list order as rank. Replacement is transactional: a reader never sees
// a half-written set.
func (r *WatchlistRepository) Save(ctx context.Context, tradeDate string, entries []contracts.WatchlistEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM watchlists WHERE trade_date = $1::date`, tradeDate); err != nil {
		return fmt.Errorf("failed to clear watchlist for %s: %w", tradeDate, err)
	}

	const insertSQL = `
		INSERT INTO watchlists (trade_date, rank, code, name, score, reason_short, is_new, turnover_penalty)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, e := range entries {
		if _, err := tx.Exec(ctx, insertSQL, tradeDate, i+1, e.Code, e.Name, e.Score, e.ReasonShort, e.IsNew, e.TurnoverPenalty); err != nil {
			return fmt.Errorf("failed to insert watchlist row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit watchlist: %w", err)
	}
	return nil
}

// Load returns the stored set for tradeDate in rank order. An unknown
// date yields an empty slice, not an error.
func (r *WatchlistRepository) Load(ctx context.Context, tradeDate string) ([]contracts.WatchlistEntry, error) {
	query := `
		SELECT code, name, score, reason_short, is_new, turnover_penalty
		FROM watchlists
		WHERE trade_date = $1::date
		ORDER BY rank
	`

	rows, err := r.pool.Query(ctx, query, tradeDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var entries []contracts.WatchlistEntry
	for rows.Next() {
		var e contracts.WatchlistEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.Score, &e.ReasonShort, &e.IsNew, &e.TurnoverPenalty); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist: %w", err)
	}

	return entries, nil
}

// LoadLatestBefore returns the most recent stored set strictly before
// tradeDate, as codes in rank order. The rotator seeds retention from
// it; an empty result means a first run.
func (r *WatchlistRepository) LoadLatestBefore(ctx context.Context, tradeDate string) ([]string, error) {
	query := `
		SELECT code
		FROM watchlists
		WHERE trade_date = (
			SELECT max(trade_date) FROM watchlists WHERE trade_date < $1::date
		)
		ORDER BY rank
	`

	rows, err := r.pool.Query(ctx, query, tradeDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query prior watchlist: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan prior watchlist code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prior watchlist: %w", err)
	}

	return codes, nil
}
