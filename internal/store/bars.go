package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/internal/contracts"
)

// BarRepository persists daily bars.
// ⭐ SSOT: bars テーブルの読み書きはここだけ
type BarRepository struct {
	pool *pgxpool.Pool
}

// NewBarRepository creates a new bar repository.
func NewBarRepository(pool *pgxpool.Pool) *BarRepository {
	return &BarRepository{pool: pool}
}

const upsertBarSQL = `
	INSERT INTO bars (code, date, open, high, low, close, volume, adj_close, suspended)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (code, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		adj_close = EXCLUDED.adj_close,
		suspended = EXCLUDED.suspended,
		updated_at = now()
`

// UpsertBatch writes bars in one round trip per pipeline flush.
// Re-ingesting a date overwrites it; confirmed bars are idempotent.
func (r *BarRepository) UpsertBatch(ctx context.Context, bars []*contracts.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertBarSQL, b.Code, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.AdjClose, b.Suspended)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range bars {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert bar: %w", err)
		}
	}
	return len(bars), nil
}

// LoadRange returns bars with from <= date <= to grouped per code and
// sorted by date. Dates come back normalized to JST midnight so they
// compare equal to dates produced by the vendor layer.
func (r *BarRepository) LoadRange(ctx context.Context, from, to time.Time) (map[string][]*contracts.Bar, error) {
	query := `
		SELECT code, date, open, high, low, close, volume, adj_close, suspended
		FROM bars
		WHERE date >= $1 AND date <= $2
		ORDER BY code, date
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	byCode := make(map[string][]*contracts.Bar)
	for rows.Next() {
		b := &contracts.Bar{}
		var d time.Time
		if err := rows.Scan(&b.Code, &d, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.AdjClose, &b.Suspended); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = calendar.Date(d)
		byCode[b.Code] = append(byCode[b.Code], b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return byCode, nil
}

// LatestDate returns the newest stored bar date, or ErrNotFound when
// the table is empty. The ingest uses it to fetch only the tail.
func (r *BarRepository) LatestDate(ctx context.Context) (time.Time, error) {
	var d *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT max(date) FROM bars`).Scan(&d); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest bar date: %w", err)
	}
	if d == nil {
		return time.Time{}, ErrNotFound
	}
	return calendar.Date(*d), nil
}
