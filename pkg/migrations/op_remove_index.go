// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpRemoveIndex drops an index. The index stays in place for the entire
// migration window since old-schema readers may still depend on it for
// query plans; it is only actually dropped at Complete.
type OpRemoveIndex struct {
	Name string `json:"name"`
}

var _ Action = (*OpRemoveIndex)(nil)

func (o *OpRemoveIndex) Validate() error {
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	return nil
}

func (o *OpRemoveIndex) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	return nil
}

func (o *OpRemoveIndex) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpRemoveIndex) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	stmt := fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", qi(o.Name))
	if err := conn.Run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("dropping index %q: %w", o.Name, err)
	}
	return nil, nil
}

func (o *OpRemoveIndex) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return nil
}
