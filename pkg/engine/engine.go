// SPDX-License-Identifier: Apache-2.0

// Package engine implements the migration orchestrator (component C6): it
// drives the persisted finite state machine over a list of migrations'
// actions, calling begin/update_schema on migrate, complete on complete,
// and abort (in reverse) on abort, all under the advisory lock.
package engine

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/lock"
	"github.com/reshapedb/reshape/pkg/migrations"
	"github.com/reshapedb/reshape/pkg/schema"
	"github.com/reshapedb/reshape/pkg/state"
)

// Engine is the single entry point for the four orchestrator operations.
// Every operation acquires the advisory lock for its entire duration.
type Engine struct {
	lock   *lock.Lock
	logger Logger
}

func New(l *lock.Lock) *Engine {
	return &Engine{lock: l, logger: NewNoopLogger()}
}

// WithLogger returns a copy of e that reports activity through logger
// instead of the default no-op logger.
func (e *Engine) WithLogger(logger Logger) *Engine {
	return &Engine{lock: e.lock, logger: logger}
}

// Status summarises the current FSM phase and migration ledger for
// reporting, the read-only counterpart to migrate/complete/abort.
type Status struct {
	Phase            state.Phase
	InProgress       []string
	AppliedMigration string
}

// Status reports the current phase and, if a migration batch is
// in-progress, its migration names.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	var out Status
	err := e.lock.WithLock(ctx, func(ctx context.Context, conn db.Connection) error {
		st := state.New(conn)
		f, err := st.Load(ctx)
		if err != nil {
			return err
		}
		out.Phase = f.Phase
		for _, m := range f.Migrations {
			out.InProgress = append(out.InProgress, m.Name)
		}
		name, ok, err := st.LastAppliedMigrationName(ctx)
		if err != nil {
			return err
		}
		if ok {
			out.AppliedMigration = name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Migrate diffs provided against the ledger, narrows the remainder by rng,
// and drives begin/update_schema over every action of every remaining
// migration, building per-migration views on success.
func (e *Engine) Migrate(ctx context.Context, provided []*migrations.Migration, rng Range) error {
	return e.lock.WithLock(ctx, func(ctx context.Context, conn db.Connection) error {
		st := state.New(conn)
		f, err := st.Load(ctx)
		if err != nil {
			return err
		}

		remaining, err := remainingMigrations(ctx, st, provided)
		if err != nil {
			return err
		}

		switch f.Phase {
		case state.PhaseCompleting:
			return CompleteInProgressError{}
		case state.PhaseAborting:
			return AbortInProgressError{}
		case state.PhaseInProgress, state.PhaseApplying:
			if err := checkPrefix(f.Migrations, remaining); err != nil {
				if f.Phase == state.PhaseApplying {
					return DirtyApplyingError{}
				}
				return err
			}
			if len(f.Migrations) == len(remaining) {
				return nil
			}
			// existing is a validated prefix of remaining but not equal to
			// it: fall through and re-drive the whole remaining set. Every
			// action's Begin is idempotent, so re-running it over the
			// already-applied prefix is a no-op; this is the
			// abort-then-reapply path without a real abort round-trip.
		}

		alreadyInProgress := len(f.Migrations)
		names, err := rng.apply(migrationNames(remaining), alreadyInProgress)
		if err != nil {
			return err
		}
		set := selectMigrations(provided, names)

		applying := state.Applying(set)
		if err := st.Save(ctx, conn, applying); err != nil {
			return err
		}

		// Seed the overlay from the tables/columns physically present in
		// `public` rather than starting empty: `set` is only the new,
		// unapplied suffix of `provided`, so without this an action
		// touching a table created by an already-completed migration
		// (from an earlier `migrate` invocation) would find no overlay
		// entry and wrongly report it as nonexistent.
		s, err := schema.SeedFromDatabase(ctx, conn)
		if err != nil {
			return fmt.Errorf("seeding schema overlay: %w", err)
		}

		// The sync triggers installed by Begin call reshape.is_new_schema(),
		// and Begin's backfills fire them, so the helper goes in first.
		if len(set) > 0 {
			if err := schema.InstallIsNewSchemaHelper(ctx, conn, set[len(set)-1].Name); err != nil {
				return err
			}
		}
		if err := e.applyMigrations(ctx, conn, st, s, set); err != nil {
			return err
		}

		if len(set) > 0 {
			if err := schema.CreateForMigration(ctx, conn, s, set[len(set)-1].Name); err != nil {
				return err
			}
		}

		return st.Save(ctx, conn, state.InProgress(set))
	})
}

// applyMigrations runs begin/update_schema over every action of every
// migration in set, in order. On any failure it drives the automatic
// abort of everything that ran before the failure and surfaces the
// original error wrapped in MigrationFailedError.
func (e *Engine) applyMigrations(ctx context.Context, conn db.Connection, st *state.Store, s *schema.Schema, set []*migrations.Migration) error {
	for migIdx, m := range set {
		e.logger.LogMigrationStart(m)
		for actIdx, a := range m.Actions {
			ctxInfo := migrations.MigrationContext{MigrationIndex: migIdx, ActionIndex: actIdx}

			e.logger.LogActionBegin(m.Name, ctxInfo, a)
			if err := a.Begin(ctx, conn, ctxInfo, s); err != nil {
				abortErr := e.abortFromFailure(ctx, conn, st, set, migIdx, actIdx)
				if abortErr != nil {
					return fmt.Errorf("%w (additionally, automatic abort failed: %s)", migrations.MigrationFailedError{Migration: m.Name, Err: err}, abortErr)
				}
				return migrations.MigrationFailedError{Migration: m.Name, Err: err}
			}
			a.UpdateSchema(ctx, ctxInfo, s)
		}
	}
	return nil
}

// abortFromFailure walks backwards from the action preceding the failed
// one, invoking Abort on everything that succeeded, then resets state to
// Idle. It mirrors abort(range) but runs inline since the failure happens
// mid-migrate, before the failing state has even been persisted.
func (e *Engine) abortFromFailure(ctx context.Context, conn db.Connection, st *state.Store, set []*migrations.Migration, failedMig, failedAct int) error {
	if err := st.Save(ctx, conn, state.Aborting(set, failedMig, failedAct)); err != nil {
		return err
	}

	for migIdx := failedMig; migIdx >= 0; migIdx-- {
		m := set[migIdx]
		upper := len(m.Actions) - 1
		if migIdx == failedMig {
			upper = failedAct - 1
		}
		for actIdx := upper; actIdx >= 0; actIdx-- {
			ctxInfo := migrations.MigrationContext{MigrationIndex: migIdx, ActionIndex: actIdx}
			e.logger.LogActionAbort(m.Name, ctxInfo, m.Actions[actIdx])
			if err := m.Actions[actIdx].Abort(ctx, conn, ctxInfo); err != nil {
				return fmt.Errorf("aborting action %d of migration %q: %w", actIdx, m.Name, err)
			}
		}
		e.logger.LogMigrationAbort(m)
		if err := st.Save(ctx, conn, state.Aborting(set, migIdx, 0)); err != nil {
			return err
		}
	}

	if err := schema.DropIsNewSchemaHelper(ctx, conn); err != nil {
		return err
	}
	return st.Clear(ctx)
}

// Complete finalises the in-progress migration batch: drops the previous
// migration's views, then drives complete over every action, bumping the
// resume indices before each call so a crash resumes past the point of
// attempt.
func (e *Engine) Complete(ctx context.Context) error {
	return e.lock.WithLock(ctx, func(ctx context.Context, conn db.Connection) error {
		st := state.New(conn)
		f, err := st.Load(ctx)
		if err != nil {
			return err
		}

		switch f.Phase {
		case state.PhaseIdle:
			return NoMigrationInProgressError{}
		case state.PhaseAborting:
			return AbortInProgressError{}
		case state.PhaseApplying:
			return DirtyApplyingError{}
		}

		migIdx, actIdx := 0, 0
		if f.Phase == state.PhaseCompleting {
			migIdx, actIdx = f.MigrationIndex, f.ActionIndex
		} else {
			prevName, ok, err := st.LastAppliedMigrationName(ctx)
			if err != nil {
				return err
			}
			if err := st.Save(ctx, conn, state.Completing(f.Migrations, 0, 0)); err != nil {
				return err
			}
			if ok {
				if err := schema.DropForMigration(ctx, conn, prevName); err != nil {
					return err
				}
			}
		}

		for migIdx < len(f.Migrations) {
			m := f.Migrations[migIdx]
			for actIdx < len(m.Actions) {
				nextAct := actIdx + 1
				nextMig := migIdx
				rollsOver := nextAct >= len(m.Actions)
				if rollsOver {
					nextAct = 0
					nextMig = migIdx + 1
				}
				if err := st.Save(ctx, conn, state.Completing(f.Migrations, nextMig, nextAct)); err != nil {
					return err
				}

				ctxInfo := migrations.MigrationContext{MigrationIndex: migIdx, ActionIndex: actIdx}
				e.logger.LogActionComplete(m.Name, ctxInfo, m.Actions[actIdx])
				txn, err := m.Actions[actIdx].Complete(ctx, conn, ctxInfo)
				if err != nil {
					return fmt.Errorf("completing action %d of migration %q: %w", actIdx, m.Name, err)
				}
				if txn != nil {
					if err := st.Save(ctx, txn, state.Completing(f.Migrations, nextMig, nextAct)); err != nil {
						return fmt.Errorf("persisting completion of action %d of migration %q: %w", actIdx, m.Name, err)
					}
					if err := txn.Commit(); err != nil {
						return fmt.Errorf("committing completion of action %d of migration %q: %w", actIdx, m.Name, err)
					}
				}

				actIdx = nextAct
				if rollsOver {
					migIdx = nextMig
					break
				}
			}
			e.logger.LogMigrationComplete(m)
		}

		if err := schema.DropIsNewSchemaHelper(ctx, conn); err != nil {
			return err
		}
		if err := st.AppendMigrations(ctx, conn, f.Migrations); err != nil {
			return err
		}
		return st.Clear(ctx)
	})
}

// Abort rolls back the in-progress migration batch within rng, dropping
// the in-flight views first. If rng keeps a non-empty prefix, that prefix
// is re-applied via Migrate once the rollback finishes.
func (e *Engine) Abort(ctx context.Context, rng Range) error {
	var reapply []*migrations.Migration

	err := e.lock.WithLock(ctx, func(ctx context.Context, conn db.Connection) error {
		st := state.New(conn)
		f, err := st.Load(ctx)
		if err != nil {
			return err
		}

		switch f.Phase {
		case state.PhaseIdle:
			return nil
		case state.PhaseCompleting:
			return CompleteInProgressError{}
		}

		lastMigIdx, lastActIdx := len(f.Migrations)-1, 0
		if lastMigIdx >= 0 {
			lastActIdx = len(f.Migrations[lastMigIdx].Actions) - 1
		}
		if f.Phase == state.PhaseAborting {
			lastMigIdx, lastActIdx = f.LastMigrationIndex, f.LastActionIndex
		} else if err := st.Save(ctx, conn, state.Aborting(f.Migrations, lastMigIdx, lastActIdx)); err != nil {
			return err
		}

		if len(f.Migrations) > 0 {
			if err := schema.DropForMigration(ctx, conn, f.Migrations[len(f.Migrations)-1].Name); err != nil {
				return err
			}
		}

		names := migrationNames(f.Migrations)
		kept, err := rng.keepPrefix(names)
		if err != nil {
			return err
		}

		for migIdx := lastMigIdx; migIdx >= kept; migIdx-- {
			m := f.Migrations[migIdx]
			upper := len(m.Actions) - 1
			if migIdx == lastMigIdx {
				upper = lastActIdx
			}
			for actIdx := upper; actIdx >= 0; actIdx-- {
				ctxInfo := migrations.MigrationContext{MigrationIndex: migIdx, ActionIndex: actIdx}
				e.logger.LogActionAbort(m.Name, ctxInfo, m.Actions[actIdx])
				if err := m.Actions[actIdx].Abort(ctx, conn, ctxInfo); err != nil {
					return fmt.Errorf("aborting action %d of migration %q: %w", actIdx, m.Name, err)
				}
			}
			e.logger.LogMigrationAbort(m)
			nextMig, nextAct := migIdx-1, 0
			if nextMig >= 0 {
				nextAct = len(f.Migrations[nextMig].Actions) - 1
			}
			if err := st.Save(ctx, conn, state.Aborting(f.Migrations, nextMig, nextAct)); err != nil {
				return err
			}
		}

		if err := schema.DropIsNewSchemaHelper(ctx, conn); err != nil {
			return err
		}
		if err := st.Clear(ctx); err != nil {
			return err
		}

		if kept > 0 {
			reapply = f.Migrations[:kept]
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(reapply) > 0 {
		return e.Migrate(ctx, reapply, NumberRange(len(reapply)))
	}
	return nil
}

func checkPrefix(existing, provided []*migrations.Migration) error {
	if len(existing) > len(provided) {
		return DivergentHistoryError{InProgress: existing[len(existing)-1].Name}
	}
	for i, m := range existing {
		if !m.Equal(provided[i]) {
			return DivergentHistoryError{InProgress: m.Name}
		}
	}
	return nil
}

// remainingMigrations diffs provided against the applied ledger, 100 rows
// at a time, returning the suffix of provided not yet applied.
func remainingMigrations(ctx context.Context, st *state.Store, provided []*migrations.Migration) ([]*migrations.Migration, error) {
	applied, err := st.AppliedMigrationNames(ctx)
	if err != nil {
		return nil, err
	}

	if len(applied) > len(provided) {
		return nil, InconsistentHistoryError{Index: len(provided), RecordedName: applied[len(provided)]}
	}
	for i, name := range applied {
		if provided[i].Name != name {
			return nil, InconsistentHistoryError{Index: i, RecordedName: name, SuppliedName: provided[i].Name}
		}
	}
	return provided[len(applied):], nil
}

func migrationNames(migs []*migrations.Migration) []string {
	names := make([]string, len(migs))
	for i, m := range migs {
		names[i] = m.Name
	}
	return names
}

func selectMigrations(provided []*migrations.Migration, names []string) []*migrations.Migration {
	byName := make(map[string]*migrations.Migration, len(provided))
	for _, m := range provided {
		byName[m.Name] = m
	}
	out := make([]*migrations.Migration, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n])
	}
	return out
}
