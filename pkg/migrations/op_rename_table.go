// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpRenameTable renames a logical table. While the migration is in
// progress the rename is overlay-only: both schemas keep reading/writing
// the same physical table under their own view, so Abort has nothing to
// undo physically. Complete renames the physical table.
type OpRenameTable struct {
	Table string `json:"table"`
	To    string `json:"to"`
}

var _ Action = (*OpRenameTable)(nil)

func (o *OpRenameTable) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if o.To == "" {
		return FieldRequiredError{Field: "to"}
	}
	return nil
}

func (o *OpRenameTable) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	if t := s.Table(o.Table); t == nil {
		return TableDoesNotExistError{Name: o.Table}
	}
	if t := s.Table(o.To); t != nil && !t.Removed {
		return TableAlreadyExistsError{Name: o.To}
	}
	return nil
}

func (o *OpRenameTable) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {
	if t := s.Table(o.Table); t != nil {
		t.CurrentName = o.To
	}
}

func (o *OpRenameTable) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	stmt := fmt.Sprintf("ALTER TABLE IF EXISTS %s RENAME TO %s", qi(o.Table), qi(o.To))
	if err := conn.Run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("renaming table %q to %q: %w", o.Table, o.To, err)
	}
	return nil, nil
}

func (o *OpRenameTable) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return nil
}
