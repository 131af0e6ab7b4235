// Package postgres implements store.Store over a Postgres cluster using
// jackc/pgx/v5's connection pool. It is the production dialect: the one
// Store implementation expected to run under concurrent, multi-replica
// load.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/agentbroker/taskbroker/internal/store"
)

// Store is the Postgres-backed store.Store implementation.
type Store struct {
	pool    *pgxpool.Pool
	dsn     string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type txKey struct{}

// Open connects to the Postgres cluster at dsn and wraps it in a Store.
// Run Migrate separately before first use.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{
		pool:    pool,
		dsn:     dsn,
		breaker: store.NewConnectionBreaker("postgres"),
		logger:  logger,
	}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.pool.Ping(ctx)
	})
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// dialect method run unmodified whether or not it is inside Store.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn returns the active transaction from ctx if Tx started one,
// otherwise the pooled connection.
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Tx runs fn inside a single Postgres transaction. Nested Tx calls reuse
// the outer transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx) // already inside a transaction
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	child := context.WithValue(ctx, txKey{}, tx)
	if err := fn(child); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("postgres: rollback failed", "error", rbErr, "original", err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// wrapErr maps pgx.ErrNoRows to store.ErrNotFound and leaves other
// errors unmodified.
func wrapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
