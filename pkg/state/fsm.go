// SPDX-License-Identifier: Apache-2.0

// Package state persists the migration engine's finite state machine and
// the ledger of completed migrations in the `reshape` schema of the target
// database.
package state

import "github.com/reshapedb/reshape/pkg/migrations"

// Phase identifies which of the five FSM states a State value represents.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseApplying   Phase = "applying"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleting Phase = "completing"
	PhaseAborting   Phase = "aborting"
)

// FSM is the persisted snapshot of the migration engine's state machine:
//
//	Idle | Applying{migrations} | InProgress{migrations} |
//	Completing{migrations, mig_i, act_i} | Aborting{migrations, last_mig_i, last_act_i}
type FSM struct {
	Phase      Phase                   `json:"phase"`
	Migrations []*migrations.Migration `json:"migrations,omitempty"`

	// MigrationIndex/ActionIndex are the resume point for Completing.
	MigrationIndex int `json:"migration_index,omitempty"`
	ActionIndex    int `json:"action_index,omitempty"`

	// LastMigrationIndex/LastActionIndex are the resume point for Aborting,
	// walked downward from these indices.
	LastMigrationIndex int `json:"last_migration_index,omitempty"`
	LastActionIndex    int `json:"last_action_index,omitempty"`
}

// Idle is the FSM's resting state: no migration is in flight.
func Idle() *FSM {
	return &FSM{Phase: PhaseIdle}
}

// Applying is the crash guard set as soon as migrate() decides which
// migrations it is about to run, before anything touches the database.
func Applying(migs []*migrations.Migration) *FSM {
	return &FSM{Phase: PhaseApplying, Migrations: migs}
}

// InProgress is reached once every action's begin has succeeded and the
// per-migration views have been built.
func InProgress(migs []*migrations.Migration) *FSM {
	return &FSM{Phase: PhaseInProgress, Migrations: migs}
}

// Completing tracks the in-progress finalisation of a migration batch.
func Completing(migs []*migrations.Migration, migIdx, actIdx int) *FSM {
	return &FSM{Phase: PhaseCompleting, Migrations: migs, MigrationIndex: migIdx, ActionIndex: actIdx}
}

// Aborting tracks the in-progress rollback of a migration batch, walking
// backwards from (lastMigIdx, lastActIdx).
func Aborting(migs []*migrations.Migration, lastMigIdx, lastActIdx int) *FSM {
	return &FSM{Phase: PhaseAborting, Migrations: migs, LastMigrationIndex: lastMigIdx, LastActionIndex: lastActIdx}
}
