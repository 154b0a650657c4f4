// SPDX-License-Identifier: Apache-2.0

// Package db provides the single database abstraction the rest of the
// engine depends on: a retrying Connection/Transaction pair used for every
// statement the migration engine issues.
package db

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"
)

const (
	// lockNotAvailableCode is the SQLSTATE Postgres returns when a
	// statement could not acquire a lock within lock_timeout.
	lockNotAvailableCode pq.ErrorCode = "55P03"

	maxAttempts        = 10
	maxBackoffDuration = 3200 * time.Millisecond
	backoffInterval    = 100 * time.Millisecond
)

// Connection abstracts the three statement shapes the engine needs. Every
// concrete action talks to the database exclusively through this
// interface, never through *sql.DB directly, so that retry and lock_timeout
// behaviour is applied uniformly.
type Connection interface {
	// Run executes a batch of one or more semicolon-separated statements
	// that return no rows.
	Run(ctx context.Context, sql string) error
	// Query runs a query and returns the resulting rows.
	Query(ctx context.Context, sql string) (*sql.Rows, error)
	// QueryWithParams runs a parameterised query and returns the resulting rows.
	QueryWithParams(ctx context.Context, sql string, args ...any) (*sql.Rows, error)
	// Begin starts a transaction.
	Begin(ctx context.Context) (*Transaction, error)
}

// Transaction is a Connection plus commit/rollback. Nested transactions are
// implemented as savepoints so that an action may open a scoped transaction
// without knowing whether it is already inside one.
type Transaction struct {
	tx      *sql.Tx
	savepts int
}

var _ Connection = (*Transaction)(nil)

func (t *Transaction) Run(ctx context.Context, query string) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		_, err := t.tx.ExecContext(ctx, query)
		return struct{}{}, err
	})
	return err
}

func (t *Transaction) Query(ctx context.Context, query string) (*sql.Rows, error) {
	return withRetry(ctx, func() (*sql.Rows, error) {
		return t.tx.QueryContext(ctx, query)
	})
}

func (t *Transaction) QueryWithParams(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return withRetry(ctx, func() (*sql.Rows, error) {
		return t.tx.QueryContext(ctx, query, args...)
	})
}

// Begin opens a savepoint scoped to this transaction.
func (t *Transaction) Begin(ctx context.Context) (*Transaction, error) {
	t.savepts++
	name := savepointName(t.savepts)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &Transaction{tx: t.tx}, nil
}

func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

func (t *Transaction) Rollback() error {
	return t.tx.Rollback()
}

func savepointName(n int) string {
	const base = "reshape_sp_"
	digits := [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}
	if n < 10 {
		return base + string(digits[n])
	}
	return base + string(digits[n/10]) + string(digits[n%10])
}

// RDB wraps *sql.DB and is the top-level Connection the engine acquires
// from the advisory lock.
type RDB struct {
	DB *sql.DB
}

var _ Connection = (*RDB)(nil)

func (db *RDB) Run(ctx context.Context, query string) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		_, err := db.DB.ExecContext(ctx, query)
		return struct{}{}, err
	})
	return err
}

func (db *RDB) Query(ctx context.Context, query string) (*sql.Rows, error) {
	return withRetry(ctx, func() (*sql.Rows, error) {
		return db.DB.QueryContext(ctx, query)
	})
}

func (db *RDB) QueryWithParams(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return withRetry(ctx, func() (*sql.Rows, error) {
		return db.DB.QueryContext(ctx, query, args...)
	})
}

func (db *RDB) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx}, nil
}

func (db *RDB) Close() error {
	return db.DB.Close()
}

// withRetry retries f up to maxAttempts times on lock_timeout (55P03) or
// transport errors, with exponential backoff and jitter, per the retry
// policy in the connection & lock design. Any other error is surfaced
// immediately.
func withRetry[T any](ctx context.Context, f func() (T, error)) (T, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	var zero T
	for attempt := 1; ; attempt++ {
		res, err := f()
		if err == nil {
			return res, nil
		}

		if !isRetryable(err) || attempt >= maxAttempts {
			return zero, err
		}

		if sleepErr := sleepCtx(ctx, b.Duration()); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// isRetryable reports whether err is a lock_timeout SQLSTATE or a
// transport-level failure, the two classes of error the retry policy
// covers.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == lockNotAvailableCode
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, sql.ErrConnDone)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ScanFirstValue scans the first column of the first row of rows into dest,
// assuming a single-row, single-column result set.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
