package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/cultivation/internal/game/cultivation"
)

// querier — общее подмножество *pgxpool.Pool и pgx.Tx, на котором работают репозитории.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// SQLSTATE codes that make a whole transaction safe to retry.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// RetryOptions controls InTx retries on serialization failures and deadlocks.
type RetryOptions struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryOptions returns the retry policy used when none is configured.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:      5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

// Store implements cultivation.Store over a pgx pool.
// Outside InTx repositories run directly on the pool (autocommit).
type Store struct {
	pool  *pgxpool.Pool
	retry RetryOptions
}

var _ cultivation.Store = (*Store)(nil)

// NewStore creates a Store. Zero intervals fall back to DefaultRetryOptions;
// MaxRetries 0 disables retries.
func NewStore(pool *pgxpool.Pool, retry RetryOptions) *Store {
	def := DefaultRetryOptions()
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = def.InitialInterval
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = def.MaxInterval
	}
	return &Store{pool: pool, retry: retry}
}

func (s *Store) Characters() cultivation.Characters { return NewCharacterRepository(s.pool) }
func (s *Store) Inventory() cultivation.Inventory   { return NewItemRepository(s.pool) }
func (s *Store) Records() cultivation.Records       { return NewTribulationRepository(s.pool) }

// Realms returns the realm ladder repository.
func (s *Store) Realms() *RealmRepository { return NewRealmRepository(s.pool) }

// AfterCommit runs fn immediately: without a transaction every write is already committed.
func (s *Store) AfterCommit(fn func()) { fn() }

// InTx runs fn in one transaction and commits it. Serialization failures and
// deadlocks restart the whole transaction with exponential backoff.
// AfterCommit hooks of an attempt run only if that attempt committed.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx cultivation.Tx) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retry.InitialInterval
	eb.MaxInterval = s.retry.MaxInterval
	eb.MaxElapsedTime = 0

	attempt := 0
	var hooks []func()
	op := func() error {
		attempt++
		h, err := s.runTx(ctx, fn)
		if err == nil {
			hooks = h
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("transaction conflict, retrying", "attempt", attempt, "error", err)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.retry.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	for _, h := range hooks {
		h()
	}
	return nil
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx cultivation.Tx) error) ([]func(), error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "error", err)
		}
	}()

	scope := &txScope{tx: tx}
	if err := fn(ctx, scope); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return scope.hooks, nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// txScope is the cultivation.Tx handed to InTx callbacks.
type txScope struct {
	tx    pgx.Tx
	hooks []func()
}

func (t *txScope) Characters() cultivation.Characters { return NewCharacterRepository(t.tx) }
func (t *txScope) Inventory() cultivation.Inventory   { return NewItemRepository(t.tx) }
func (t *txScope) Records() cultivation.Records       { return NewTribulationRepository(t.tx) }

func (t *txScope) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}
