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

// EventRepository persists corporate events.
// ⭐ SSOT: events テーブルの読み書きはここだけ
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

const insertEventSQL = `
	INSERT INTO events (code, date, event_type)
	VALUES ($1, $2, $3)
	ON CONFLICT (code, date, event_type) DO NOTHING
`

// UpsertBatch stores events, ignoring duplicates. The same event is
// routinely re-scraped day after day.
func (r *EventRepository) UpsertBatch(ctx context.Context, events []contracts.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEventSQL, e.Code, e.Date, string(e.Type))
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert event: %w", err)
		}
	}
	return len(events), nil
}

// LoadRange returns events with from <= date <= to ordered by date
// then code.
func (r *EventRepository) LoadRange(ctx context.Context, from, to time.Time) ([]contracts.Event, error) {
	query := `
		SELECT code, date, event_type
		FROM events
		WHERE date >= $1 AND date <= $2
		ORDER BY date, code
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []contracts.Event
	for rows.Next() {
		var e contracts.Event
		var d time.Time
		var typ string
		if err := rows.Scan(&e.Code, &d, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Date = calendar.Date(d)
		e.Type = contracts.EventType(typ)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}
