// SPDX-License-Identifier: Apache-2.0

// Package lock enforces the single-writer discipline the engine relies on:
// at most one `reshape` invocation may hold the database's advisory lock at
// a time, and every mutation the engine performs happens while holding it.
package lock

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
)

// Key is the fixed 64-bit advisory lock key shared by every reshape
// instance pointed at the same database.
const Key int64 = 4036779288569897133

// AnotherInstanceRunningError is returned when pg_try_advisory_lock fails
// to acquire the lock because another engine instance already holds it.
type AnotherInstanceRunningError struct{}

func (AnotherInstanceRunningError) Error() string {
	return "another reshape instance is already running against this database"
}

// Lock wraps a *sql.DB and exposes WithLock, the sole entry point through
// which the orchestrator touches the database.
type Lock struct {
	conn *sql.DB
}

// New opens a connection to pgURL and sets lock_timeout for the session, as
// specified in the connection & lock design: lock_timeout bounds how long
// any DDL statement will wait for row/table locks.
func New(ctx context.Context, pgURL string, lockTimeout string) (*Lock, error) {
	conn, err := sql.Open("postgres", pgURL)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	// The advisory lock and lock_timeout belong to one session, so the pool
	// is capped at a single connection that every statement shares.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if lockTimeout == "" {
		lockTimeout = "1s"
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("SET lock_timeout = %s", pq.QuoteLiteral(lockTimeout)))
	if err != nil {
		return nil, fmt.Errorf("setting lock_timeout: %w", err)
	}

	return &Lock{conn: conn}, nil
}

// Close closes the underlying connection.
func (l *Lock) Close() error {
	return l.conn.Close()
}

// WithLock acquires the advisory lock, runs f with a Connection wrapping
// the locked session, and releases the lock unconditionally on every exit
// path, including when f panics.
func (l *Lock) WithLock(ctx context.Context, f func(ctx context.Context, conn db.Connection) error) (err error) {
	var acquired bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", Key).Scan(&acquired); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}
	if !acquired {
		return AnotherInstanceRunningError{}
	}

	defer func() {
		if r := recover(); r != nil {
			l.unlock(ctx)
			panic(r)
		}
	}()
	defer l.unlock(ctx)

	return f(ctx, &db.RDB{DB: l.conn})
}

func (l *Lock) unlock(ctx context.Context) {
	// pg_advisory_unlock is called unconditionally; its result is
	// deliberately ignored beyond best-effort cleanup, since a failed
	// unlock (e.g. connection already dropped) cannot be acted on here and
	// the session closing also releases the lock.
	_, _ = l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", Key)
}
