// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/migrations"
)

// EngineVersion is recorded into reshape.data on every Load so that a
// future engine build can detect which version last touched the
// database. Per the version-mismatch open question, a mismatch is
// recorded, never rejected.
const EngineVersion = "0.1.0"

const createSchemaAndTables = `
CREATE SCHEMA IF NOT EXISTS reshape;

CREATE TABLE IF NOT EXISTS reshape.data (
	key   TEXT PRIMARY KEY,
	value JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS reshape.migrations (
	index        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT,
	actions      JSONB NOT NULL,
	completed_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

// Store wraps a db.Connection with the reshape.data/reshape.migrations
// bookkeeping tables.
type Store struct {
	conn db.Connection
}

func New(conn db.Connection) *Store {
	return &Store{conn: conn}
}

// EnsureSchemaAndTables creates the reshape namespace and both bookkeeping
// tables if absent, and records the running engine's version. Safe to call
// on every Load; CREATE ... IF NOT EXISTS makes it idempotent.
func (s *Store) EnsureSchemaAndTables(ctx context.Context) error {
	if err := s.conn.Run(ctx, createSchemaAndTables); err != nil {
		return fmt.Errorf("ensuring reshape schema: %w", err)
	}
	return s.recordVersion(ctx)
}

func (s *Store) recordVersion(ctx context.Context) error {
	value, err := json.Marshal(EngineVersion)
	if err != nil {
		return err
	}
	rows, err := s.conn.QueryWithParams(ctx, `
		INSERT INTO reshape.data (key, value) VALUES ('version', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, string(value))
	if err != nil {
		return fmt.Errorf("recording engine version: %w", err)
	}
	return rows.Close()
}

// Load ensures the bookkeeping tables exist, then reads the persisted FSM
// snapshot. An absent row means the engine has never run against this
// database: Idle.
func (s *Store) Load(ctx context.Context) (*FSM, error) {
	if err := s.EnsureSchemaAndTables(ctx); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryWithParams(ctx, `SELECT value FROM reshape.data WHERE key = 'state'`)
	if err != nil {
		return nil, fmt.Errorf("loading engine state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Idle(), rows.Err()
	}

	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("scanning engine state: %w", err)
	}

	var f FSM
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decoding engine state: %w", err)
	}
	return &f, nil
}

// Save upserts the FSM snapshot. conn may be a *db.Transaction, so that
// Complete can persist state and retire an action's artefacts atomically.
func (s *Store) Save(ctx context.Context, conn db.Connection, f *FSM) error {
	value, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding engine state: %w", err)
	}

	rows, err := conn.QueryWithParams(ctx, `
		INSERT INTO reshape.data (key, value) VALUES ('state', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, string(value))
	if err != nil {
		return fmt.Errorf("persisting engine state: %w", err)
	}
	return rows.Close()
}

// Clear resets the persisted FSM to Idle.
func (s *Store) Clear(ctx context.Context) error {
	return s.Save(ctx, s.conn, Idle())
}

// AppendMigrations appends newly-completed migrations to the ledger,
// within conn so callers can wrap it in the same transaction as the final
// action's Complete and the state transition back to Idle.
func (s *Store) AppendMigrations(ctx context.Context, conn db.Connection, migs []*migrations.Migration) error {
	for _, m := range migs {
		actions, err := json.Marshal(m.Actions)
		if err != nil {
			return fmt.Errorf("encoding migration %q actions: %w", m.Name, err)
		}
		rows, err := conn.QueryWithParams(ctx, `
			INSERT INTO reshape.migrations (name, description, actions) VALUES ($1, $2, $3)`,
			m.Name, m.Description, string(actions))
		if err != nil {
			return fmt.Errorf("recording migration %q: %w", m.Name, err)
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

// LastAppliedMigrationName returns the name of the most recently completed
// migration in the ledger, queried by descending index rather than any
// in-memory batch offset, so `complete` can find the view schema to drop
// even when the just-applied batch held only one migration. The second
// return value is false when the ledger is empty.
func (s *Store) LastAppliedMigrationName(ctx context.Context) (string, bool, error) {
	rows, err := s.conn.QueryWithParams(ctx, `SELECT name FROM reshape.migrations ORDER BY index DESC LIMIT 1`)
	if err != nil {
		return "", false, fmt.Errorf("loading last applied migration: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}

	var name string
	if err := rows.Scan(&name); err != nil {
		return "", false, fmt.Errorf("scanning last applied migration: %w", err)
	}
	return name, true, rows.Err()
}

// AppliedMigrationNames returns the names of every migration recorded in
// the ledger, in application order, used by the orchestrator to diff a
// supplied plan against what has already run.
func (s *Store) AppliedMigrationNames(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryWithParams(ctx, `SELECT name FROM reshape.migrations ORDER BY index ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
