package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmuraoka/kabuto/internal/contracts"
)

// RunRepository keeps the run ledger and the per-run artifacts served
// by the read API.
// ⭐ SSOT: runs テーブルの読み書きはここだけ
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run repository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// Start records a new run in running state.
func (r *RunRepository) Start(ctx context.Context, rec *contracts.RunRecord) error {
	query := `
		INSERT INTO runs (run_id, trade_date, status, started_at)
		VALUES ($1, $2::date, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, rec.RunID, rec.TradeDate, string(rec.Status), rec.StartedAt); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}
	return nil
}

// Finish closes the ledger entry and attaches the artifacts. card and
// quality may be nil on a failed run.
func (r *RunRepository) Finish(ctx context.Context, rec *contracts.RunRecord, card *contracts.DecisionCard, quality *contracts.QualityReport) error {
	var cardJSON, qualityJSON []byte
	var err error
	if card != nil {
		if cardJSON, err = json.Marshal(card); err != nil {
			return fmt.Errorf("failed to marshal card: %w", err)
		}
	}
	if quality != nil {
		if qualityJSON, err = json.Marshal(quality); err != nil {
			return fmt.Errorf("failed to marshal quality report: %w", err)
		}
	}

	query := `
		UPDATE runs SET
			status = $2,
			action = NULLIF($3, ''),
			error = NULLIF($4, ''),
			finished_at = $5,
			card = $6,
			quality = $7
		WHERE run_id = $1
	`
	if _, err := r.pool.Exec(ctx, query,
		rec.RunID, string(rec.Status), string(rec.Action), rec.Error, rec.FinishedAt, cardJSON, qualityJSON,
	); err != nil {
		return fmt.Errorf("failed to finish run %s: %w", rec.RunID, err)
	}
	return nil
}

const runColumns = `
	run_id,
	trade_date,
	status,
	COALESCE(action, ''),
	COALESCE(error, ''),
	started_at,
	finished_at
`

func scanRun(row pgx.Row) (*contracts.RunRecord, error) {
	var rec contracts.RunRecord
	var td time.Time
	var status, action string
	if err := row.Scan(&rec.RunID, &td, &status, &action, &rec.Error, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	rec.TradeDate = td.Format("2006-01-02")
	rec.Status = contracts.RunStatus(status)
	rec.Action = contracts.Action(action)
	return &rec, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]contracts.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var recs []contracts.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return recs, nil
}

// LatestByTradeDate returns the newest run for a trade date.
func (r *RunRepository) LatestByTradeDate(ctx context.Context, tradeDate string) (*contracts.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE trade_date = $1::date ORDER BY started_at DESC LIMIT 1`

	rec, err := scanRun(r.pool.QueryRow(ctx, query, tradeDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run for %s: %w", tradeDate, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run for %s: %w", tradeDate, err)
	}
	return rec, nil
}

// Card returns the stored decision card for a trade date as raw JSON.
func (r *RunRepository) Card(ctx context.Context, tradeDate string) (json.RawMessage, error) {
	return r.artifact(ctx, "card", tradeDate)
}

// Quality returns the stored quality report for a trade date as raw
// JSON.
func (r *RunRepository) Quality(ctx context.Context, tradeDate string) (json.RawMessage, error) {
	return r.artifact(ctx, "quality", tradeDate)
}

func (r *RunRepository) artifact(ctx context.Context, column, tradeDate string) (json.RawMessage, error) {
	// column is one of two fixed names, never caller input.
	query := `
		SELECT ` + column + `
		FROM runs
		WHERE trade_date = $1::date AND ` + column + ` IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	var raw []byte
	if err := r.pool.QueryRow(ctx, query, tradeDate).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s for %s: %w", column, tradeDate, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query %s for %s: %w", column, tradeDate, err)
	}
	return json.RawMessage(raw), nil
}
