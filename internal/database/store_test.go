package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records statements and answers from canned results.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error
	batch    *pgx.Batch
	inserted map[string]bool // tickers reported as new by the batch
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return f.execTag, f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, f.queryErr
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return &fakeBatchResults{db: f, queued: b.QueuedQueries}
}

type fakeBatchResults struct {
	db     *fakeDB
	queued []*pgx.QueuedQuery
	next   int
	closed bool
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	q := r.queued[r.next]
	r.next++
	ticker := q.Arguments[1].(string)
	if r.db.inserted[ticker] {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 0"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeBatchResults) QueryRow() pgx.Row         { return nil }
func (r *fakeBatchResults) Close() error {
	r.closed = true
	return nil
}

func TestStore_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	s := NewStore(db, nil)

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "CREATE TABLE IF NOT EXISTS subscriptions") {
		t.Errorf("statements = %v", db.execSQL)
	}

	db.execErr = errors.New("permission denied")
	if err := s.EnsureSchema(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestStore_AddSubscriptions(t *testing.T) {
	db := &fakeDB{inserted: map[string]bool{"GOOG": true, "NVDA": true}}
	s := NewStore(db, nil)

	added, err := s.AddSubscriptions(context.Background(), "trader@example.com", "GOOG", "TSLA", "NVDA")
	if err != nil {
		t.Fatalf("AddSubscriptions failed: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if db.batch.Len() != 3 {
		t.Errorf("batch len = %d, want 3", db.batch.Len())
	}
	if owner := db.batch.QueuedQueries[0].Arguments[0]; owner != "trader@example.com" {
		t.Errorf("owner arg = %v", owner)
	}

	// Nothing to insert sends no batch.
	db.batch = nil
	if n, err := s.AddSubscriptions(context.Background(), "trader@example.com"); err != nil || n != 0 {
		t.Errorf("empty AddSubscriptions = %d, %v", n, err)
	}
	if db.batch != nil {
		t.Error("empty AddSubscriptions should not send a batch")
	}
}

func TestStore_RemoveSubscription(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("DELETE 1")}
	s := NewStore(db, nil)

	removed, err := s.RemoveSubscription(context.Background(), "trader@example.com", "META")
	if err != nil {
		t.Fatalf("RemoveSubscription failed: %v", err)
	}
	if !removed {
		t.Error("expected removed = true")
	}
	if args := db.execArgs[0]; args[0] != "trader@example.com" || args[1] != "META" {
		t.Errorf("args = %v", args)
	}

	db.execTag = pgconn.NewCommandTag("DELETE 0")
	removed, _ = s.RemoveSubscription(context.Background(), "trader@example.com", "META")
	if removed {
		t.Error("expected removed = false for a missing row")
	}
}

func TestStore_ListSubscriptionsError(t *testing.T) {
	db := &fakeDB{queryErr: errors.New("connection reset")}
	s := NewStore(db, nil)

	if _, err := s.ListSubscriptions(context.Background(), "trader@example.com"); err == nil {
		t.Error("expected error")
	}
}

func TestStore_CloseWithoutPool(t *testing.T) {
	s := NewStore(&fakeDB{}, nil)
	s.Close() // must not panic
}
