// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpCreateEnum creates a Postgres enum type. Types have no old/new schema
// duality, so creation at Begin is final.
type OpCreateEnum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

var _ Action = (*OpCreateEnum)(nil)

func (o *OpCreateEnum) Validate() error {
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	if len(o.Values) == 0 {
		return FieldRequiredError{Field: "values"}
	}
	return nil
}

func (o *OpCreateEnum) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	exists, err := enumExists(ctx, conn, o.Name)
	if err != nil {
		return fmt.Errorf("checking enum %q: %w", o.Name, err)
	}
	if exists {
		return nil
	}

	values := make([]string, len(o.Values))
	for i, v := range o.Values {
		values[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}

	stmt := fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", qi(o.Name), strings.Join(values, ", "))
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("creating enum %q: %w", o.Name, err)
	}
	return nil
}

func (o *OpCreateEnum) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpCreateEnum) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	return nil, nil
}

func (o *OpCreateEnum) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return conn.Run(ctx, fmt.Sprintf("DROP TYPE IF EXISTS %s", qi(o.Name)))
}

func enumExists(ctx context.Context, conn db.Connection, name string) (bool, error) {
	rows, err := conn.QueryWithParams(ctx, `
		SELECT 1 FROM pg_type WHERE typname = $1 AND typtype = 'e' LIMIT 1`, name)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
