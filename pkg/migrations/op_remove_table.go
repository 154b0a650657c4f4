// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpRemoveTable removes a logical table. The physical table stays in place
// until Complete so that old-schema readers and writers keep working for
// the whole migration window.
type OpRemoveTable struct {
	Table string `json:"table"`
}

var _ Action = (*OpRemoveTable)(nil)

func (o *OpRemoveTable) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	return nil
}

func (o *OpRemoveTable) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	if t := s.Table(o.Table); t == nil {
		return TableDoesNotExistError{Name: o.Table}
	}
	return nil
}

func (o *OpRemoveTable) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {
	s.ChangeTable(o.Table, func(t *schema.TableChanges) {
		t.Removed = true
	})
}

func (o *OpRemoveTable) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", qi(o.Table))
	if err := conn.Run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("dropping table %q: %w", o.Table, err)
	}
	return nil, nil
}

func (o *OpRemoveTable) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return nil
}
