// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// Action is the polymorphic unit a Migration is built from. Every variant
// must be idempotent in both Begin and Abort so that the engine may retry
// a call that was interrupted mid-flight.
type Action interface {
	// Begin applies the action, leaving the database in a state where both
	// the old and the new logical schema work correctly.
	Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error

	// UpdateSchema applies this action's effect to the in-memory overlay.
	// Called by the orchestrator only after Begin has succeeded, with the
	// same MigrationContext so an action can derive the name of any
	// artefact (e.g. a shadow column) it created in Begin.
	UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema)

	// Complete finalises the action: removes old artefacts and promotes the
	// new schema to the only schema.
	Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error)

	// Abort reverses Begin, removing any created artefacts and restoring
	// the pre-migration physical state.
	Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error

	// Validate checks the action's parameters before any DB I/O.
	Validate() error
}

// MigrationContext is immutable per Begin/Complete/Abort call and names
// every temporary database object the action creates.
type MigrationContext struct {
	MigrationIndex     int
	ActionIndex        int
	ExistingSchemaName string
}

// Prefix is the deterministic name prefix used for forward-ordering
// artefacts: triggers, functions, constraints, shadow columns.
func (c MigrationContext) Prefix() string {
	return fmt.Sprintf("__reshape_%04d_%04d", c.MigrationIndex, c.ActionIndex)
}

// PrefixInverse is the complementary prefix used to order teardown so that
// artefacts created later are torn down first.
func (c MigrationContext) PrefixInverse() string {
	return fmt.Sprintf("__reshape_%04d_%04d", 1000-c.MigrationIndex, 1000-c.ActionIndex)
}

// Actions is a list of Action, serialized with a discriminant `type` field
// mapping to the concrete variant; see parse.go.
type Actions []Action
