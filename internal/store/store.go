// Package store persists bars, events, watchlists and the run ledger
// in PostgreSQL. All SQL lives in this package.
// ⭐ SSOT: 永続化の SQL はこのパッケージだけ
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hmuraoka/kabuto/pkg/database"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrRunLocked means another process holds the advisory lock for
	// the trade date.
	ErrRunLocked = errors.New("another run holds the trade-date lock")
)

// Store bundles the repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger

	Bars       *BarRepository
	Events     *EventRepository
	Watchlists *WatchlistRepository
	Runs       *RunRepository
}

// New wires the repositories onto the shared pool.
func New(db *database.DB, log *logger.Logger) *Store {
	pool := db.Pool
	return &Store{
		pool:       pool,
		log:        log.WithComponent("store"),
		Bars:       NewBarRepository(pool),
		Events:     NewEventRepository(pool),
		Watchlists: NewWatchlistRepository(pool),
		Runs:       NewRunRepository(pool),
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bars (
		code       text NOT NULL,
		date       date NOT NULL,
		open       double precision,
		high       double precision,
		low        double precision,
		close      double precision,
		volume     double precision,
		adj_close  double precision,
		suspended  boolean NOT NULL DEFAULT false,
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (code, date)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		code       text NOT NULL,
		date       date NOT NULL,
		event_type text NOT NULL,
		PRIMARY KEY (code, date, event_type)
	)`,
	`CREATE TABLE IF NOT EXISTS watchlists (
		trade_date       date NOT NULL,
		rank             integer NOT NULL,
		code             text NOT NULL,
		name             text NOT NULL DEFAULT '',
		score            double precision NOT NULL,
		reason_short     text NOT NULL DEFAULT '',
		is_new           boolean NOT NULL DEFAULT false,
		turnover_penalty double precision NOT NULL DEFAULT 0,
		PRIMARY KEY (trade_date, rank)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id      text PRIMARY KEY,
		trade_date  date NOT NULL,
		status      text NOT NULL,
		action      text,
		error       text,
		started_at  timestamptz NOT NULL,
		finished_at timestamptz,
		card        jsonb,
		quality     jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS bars_date_idx ON bars (date)`,
	`CREATE INDEX IF NOT EXISTS runs_trade_date_idx ON runs (trade_date, started_at DESC)`,
}

// Migrate creates the schema when it does not exist yet. Statements are
// idempotent, so running it on every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	s.log.Info("Database schema ensured")
	return nil
}

// RunLock pins the connection holding a session advisory lock.
type RunLock struct {
	conn *pgxpool.Conn
	key  int64
}

func lockKey(tradeDate string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("kabuto:run:" + tradeDate))
	return int64(h.Sum64())
}

// AcquireRunLock takes the per-trade-date advisory lock. It fails fast
// with ErrRunLocked when another process is already running this date.
func (s *Store) AcquireRunLock(ctx context.Context, tradeDate string) (*RunLock, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := lockKey(tradeDate)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("trade date %s: %w", tradeDate, ErrRunLocked)
	}

	s.log.WithField("trade_date", tradeDate).Debug("Run lock acquired")
	return &RunLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the pinned connection to the pool. Safe
// to call more than once.
func (l *RunLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}
