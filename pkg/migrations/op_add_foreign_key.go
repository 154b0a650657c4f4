// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// ForeignKeyReference names the table/columns a foreign key points at.
type ForeignKeyReference struct {
	Table    string   `json:"table"`
	Columns  []string `json:"columns"`
	OnDelete string   `json:"on_delete,omitempty"`
}

// OpAddForeignKey adds a foreign key without blocking writes: the
// constraint is added NOT VALID and validated in the same Begin call, so a
// pre-existing violation fails migrate immediately (and triggers automatic
// abort) instead of surfacing only once complete runs.
type OpAddForeignKey struct {
	Table      string              `json:"table"`
	Name       string              `json:"name"`
	Columns    []string            `json:"columns"`
	References ForeignKeyReference `json:"references"`
}

var _ Action = (*OpAddForeignKey)(nil)

func (o *OpAddForeignKey) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	if len(o.Columns) == 0 {
		return FieldRequiredError{Field: "columns"}
	}
	if o.References.Table == "" || len(o.References.Columns) == 0 {
		return FieldRequiredError{Field: "references"}
	}
	return nil
}

func (o *OpAddForeignKey) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	table := s.Table(o.Table)
	if table == nil {
		return TableDoesNotExistError{Name: o.Table}
	}
	refTable := s.Table(o.References.Table)
	if refTable == nil {
		return TableDoesNotExistError{Name: o.References.Table}
	}

	cols := resolveRealColumns(table, o.Columns)
	refCols := resolveRealColumns(refTable, o.References.Columns)

	onDelete := ""
	if o.References.OnDelete != "" {
		onDelete = fmt.Sprintf(" ON DELETE %s", o.References.OnDelete)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s NOT VALID",
		qi(table.RealName), qi(o.Name), strings.Join(cols, ", "), qi(refTable.RealName), strings.Join(refCols, ", "), onDelete)
	if err := runIgnoringDuplicate(ctx, conn, stmt); err != nil {
		return fmt.Errorf("adding foreign key %q: %w", o.Name, err)
	}

	validate := fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", qi(table.RealName), qi(o.Name))
	if err := conn.Run(ctx, validate); err != nil {
		return fmt.Errorf("validating foreign key %q: %w", o.Name, err)
	}
	return nil
}

func (o *OpAddForeignKey) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpAddForeignKey) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	return nil, nil
}

func (o *OpAddForeignKey) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	stmt := fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP CONSTRAINT IF EXISTS %s", qi(o.Table), qi(o.Name))
	return conn.Run(ctx, stmt)
}

func resolveRealColumns(table *schema.TableChanges, logical []string) []string {
	out := make([]string, len(logical))
	for i, name := range logical {
		real := name
		if c := table.Column(name); c != nil {
			real = c.ActiveColumn()
		}
		out[i] = qi(real)
	}
	return out
}
