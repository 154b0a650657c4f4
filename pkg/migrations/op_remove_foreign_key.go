// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpRemoveForeignKey drops a foreign key. The constraint keeps enforcing
// referential integrity for old-schema writers throughout the migration
// and is only actually dropped once Complete runs.
type OpRemoveForeignKey struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

var _ Action = (*OpRemoveForeignKey)(nil)

func (o *OpRemoveForeignKey) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	return nil
}

func (o *OpRemoveForeignKey) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	table := s.Table(o.Table)
	if table == nil {
		return TableDoesNotExistError{Name: o.Table}
	}

	exists, err := foreignKeyExists(ctx, conn, table.RealName, o.Name)
	if err != nil {
		return fmt.Errorf("checking foreign key %q: %w", o.Name, err)
	}
	if !exists {
		return ForeignKeyMissingError{Table: o.Table, Name: o.Name}
	}
	return nil
}

func (o *OpRemoveForeignKey) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpRemoveForeignKey) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", qi(o.Table), qi(o.Name))
	if err := conn.Run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("dropping foreign key %q: %w", o.Name, err)
	}
	return nil, nil
}

func (o *OpRemoveForeignKey) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return nil
}

func foreignKeyExists(ctx context.Context, conn db.Connection, realTable, name string) (bool, error) {
	rows, err := conn.QueryWithParams(ctx, `
		SELECT 1
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		WHERE cl.relname = $1 AND con.conname = $2 AND con.contype = 'f'
		LIMIT 1`, realTable, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
