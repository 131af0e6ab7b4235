// Package sqlite implements store.Store over an embedded SQLite
// database, using database/sql and jmoiron/sqlx. It is used for local
// development, the CLI's one-shot mode, and unit tests that do not need
// a live Postgres instance.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sony/gobreaker"

	"github.com/agentbroker/taskbroker/internal/store"
)

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db      *sqlx.DB
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

type txKey struct{}

// Open opens (and, if needed, creates) a SQLite database file at dsn and
// wraps it in a Store. Run Migrate separately before first use.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver serializes writers; avoid SQLITE_BUSY churn
	return &Store{
		db:      db,
		breaker: store.NewConnectionBreaker("sqlite"),
		logger:  logger,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.db.PingContext(ctx)
	})
	return err
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, letting every
// dialect method run unmodified whether or not it is inside Store.Tx.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// conn returns the active transaction from ctx if Tx started one,
// otherwise the pooled *sqlx.DB.
func (s *Store) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// Tx runs fn inside a single SQLite transaction. Nested Tx calls reuse
// the outer transaction.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx) // already inside a transaction
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	child := context.WithValue(ctx, txKey{}, tx)
	if err := fn(child); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("sqlite: rollback failed", "error", rbErr, "original", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// wrapErr maps sql.ErrNoRows to store.ErrNotFound and leaves other
// errors unmodified.
func wrapErr(err error) error {
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	return err
}

// boolCol converts a SQLite 0/1 INTEGER column into a bool.
func boolCol(v int) bool { return v != 0 }

// boolVal converts a bool into the 0/1 representation SQLite stores.
func boolVal(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqlxIn expands a query's "IN (?)" placeholder for a slice argument and
// rebinds it to SQLite's "?" bindvar style.
func sqlxIn(query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.QUESTION, expanded), expandedArgs, nil
}
