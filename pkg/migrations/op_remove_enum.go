// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpRemoveEnum drops an enum type. Since a type still referenced by any
// column would make the drop fail outright, the enum is only actually
// dropped at Complete, by which point old-schema columns using it must
// already be gone.
type OpRemoveEnum struct {
	Name string `json:"name"`
}

var _ Action = (*OpRemoveEnum)(nil)

func (o *OpRemoveEnum) Validate() error {
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	return nil
}

func (o *OpRemoveEnum) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	exists, err := enumExists(ctx, conn, o.Name)
	if err != nil {
		return fmt.Errorf("checking enum %q: %w", o.Name, err)
	}
	if !exists {
		return ValidationError{Reason: fmt.Sprintf("enum %q does not exist", o.Name)}
	}
	return nil
}

func (o *OpRemoveEnum) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpRemoveEnum) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	stmt := fmt.Sprintf("DROP TYPE IF EXISTS %s", qi(o.Name))
	if err := conn.Run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("dropping enum %q: %w", o.Name, err)
	}
	return nil, nil
}

func (o *OpRemoveEnum) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return nil
}
