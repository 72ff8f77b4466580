package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rickgao/pricefeed/internal/model"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS subscriptions (
		owner      TEXT        NOT NULL,
		ticker     TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner, ticker)
	)
`

// Store persists watchlists keyed by owner.
type Store struct {
	db     DB
	logger *slog.Logger
	close  func() // Set by Open
}

// NewStore creates a Store on db.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the pool opened by Open. It is a no-op for stores built
// with NewStore.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// EnsureSchema creates the subscriptions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create subscriptions table: %w", err)
	}
	return nil
}

// ListSubscriptions returns owner's tickers, oldest first.
func (s *Store) ListSubscriptions(ctx context.Context, owner string) ([]model.Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ticker, (EXTRACT(EPOCH FROM created_at) * 1000000)::BIGINT
		FROM subscriptions
		WHERE owner = $1
		ORDER BY created_at, ticker
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Subscription, error) {
		sub := model.Subscription{Source: "postgres"}
		err := row.Scan(&sub.Ticker, &sub.CreatedAt)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan subscriptions: %w", err)
	}
	return subs, nil
}

// AddSubscriptions inserts tickers for owner using pgx.Batch with ON CONFLICT
// DO NOTHING. It returns how many were new.
func (s *Store) AddSubscriptions(ctx context.Context, owner string, tickers ...string) (added int, err error) {
	if len(tickers) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range tickers {
		batch.Queue(`
			INSERT INTO subscriptions (owner, ticker)
			VALUES ($1, $2)
			ON CONFLICT (owner, ticker) DO NOTHING
		`, owner, t)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range tickers {
		ct, err := results.Exec()
		if err != nil {
			return added, fmt.Errorf("insert subscription: %w", err)
		}
		added += int(ct.RowsAffected())
	}

	s.logger.Debug("stored subscriptions", "owner", owner, "requested", len(tickers), "added", added)
	return added, nil
}

// RemoveSubscription deletes one ticker. It reports whether a row existed.
func (s *Store) RemoveSubscription(ctx context.Context, owner, ticker string) (bool, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM subscriptions WHERE owner = $1 AND ticker = $2`, owner, ticker)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
