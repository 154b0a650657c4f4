// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpCreateTable creates a brand new physical table. Since nothing existed
// before, there is no old-schema compatibility concern: the table becomes
// visible to both logical schemas as soon as Begin returns.
type OpCreateTable struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primary_key"`
}

var _ Action = (*OpCreateTable)(nil)

func (o *OpCreateTable) Validate() error {
	if o.Name == "" {
		return FieldRequiredError{Field: "name"}
	}
	if len(o.Columns) == 0 {
		return FieldRequiredError{Field: "columns"}
	}
	for _, c := range o.Columns {
		if c.Name == "" {
			return FieldRequiredError{Field: "columns[].name"}
		}
		if c.DataType == "" {
			return FieldRequiredError{Field: "columns[].type"}
		}
		if r := c.References; r != nil && (r.Table == "" || len(r.Columns) == 0) {
			return FieldRequiredError{Field: "columns[].references"}
		}
	}
	return nil
}

func (o *OpCreateTable) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	if t := s.Table(o.Name); t != nil && !t.Removed {
		return TableAlreadyExistsError{Name: o.Name}
	}

	defs := make([]string, 0, len(o.Columns)+1)
	for _, c := range o.Columns {
		def := fmt.Sprintf("%s %s", qi(c.Name), c.DataType)
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.Default != nil {
			def += fmt.Sprintf(" DEFAULT %s", *c.Default)
		}
		if c.Generated != nil {
			def += fmt.Sprintf(" GENERATED %s", *c.Generated)
		}
		if r := c.References; r != nil {
			refCols := make([]string, len(r.Columns))
			for i, rc := range r.Columns {
				refCols[i] = qi(rc)
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", qi(r.Table), strings.Join(refCols, ", "))
			if r.OnDelete != "" {
				def += fmt.Sprintf(" ON DELETE %s", r.OnDelete)
			}
		}
		defs = append(defs, def)
	}
	if len(o.PrimaryKey) > 0 {
		pk := make([]string, len(o.PrimaryKey))
		for i, c := range o.PrimaryKey {
			pk[i] = qi(c)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pk, ", ")))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", qi(o.Name), strings.Join(defs, ",\n\t"))
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %q: %w", o.Name, err)
	}
	return nil
}

func (o *OpCreateTable) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {
	s.ChangeTable(o.Name, func(t *schema.TableChanges) {
		t.PrimaryKey = append([]string(nil), o.PrimaryKey...)
		for _, c := range o.Columns {
			if t.Column(c.Name) == nil {
				t.Columns = append(t.Columns, &schema.ColumnChanges{
					CurrentName:    c.Name,
					BackingColumns: []string{c.Name},
				})
			}
		}
	})
}

func (o *OpCreateTable) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	return nil, nil
}

func (o *OpCreateTable) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	return conn.Run(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qi(o.Name)))
}
