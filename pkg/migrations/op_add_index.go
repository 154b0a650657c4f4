// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpAddIndex builds a new index concurrently. An index is a physical
// artefact visible to both logical schemas as soon as it exists, so
// Complete is a no-op and Abort drops it.
type OpAddIndex struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
	Method  string   `json:"method,omitempty"`
}

var _ Action = (*OpAddIndex)(nil)

func (o *OpAddIndex) Validate() error {
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if len(o.Columns) == 0 {
		return FieldRequiredError{Field: "columns"}
	}
	return nil
}

func (o *OpAddIndex) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	table := s.Table(o.Table)
	if table == nil {
		return TableDoesNotExistError{Name: o.Table}
	}

	realCols := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		realCol := c
		if cc := table.Column(c); cc != nil {
			realCol = cc.ActiveColumn()
		}
		realCols[i] = qi(realCol)
	}

	unique := ""
	if o.Unique {
		unique = "UNIQUE "
	}
	using := ""
	if o.Method != "" {
		using = fmt.Sprintf("USING %s ", o.Method)
	}

	stmt := fmt.Sprintf("CREATE %sINDEX CONCURRENTLY IF NOT EXISTS %s ON %s %s(%s)",
		unique, qi(o.Name), qi(table.RealName), using, strings.Join(realCols, ", "))
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("creating index %q: %w", o.Name, err)
	}
	return nil
}

func (o *OpAddIndex) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpAddIndex) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	return nil, nil
}

func (o *OpAddIndex) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return conn.Run(ctx, fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", qi(o.Name)))
}
