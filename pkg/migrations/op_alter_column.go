// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/backfill"
	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// ColumnChanges describes the subset of a column's properties alter_column
// is changing; fields left nil are unchanged.
type ColumnChanges struct {
	Name     *string `json:"name,omitempty"`
	Nullable *bool   `json:"nullable,omitempty"`
	Type     *string `json:"type,omitempty"`
	Default  *string `json:"default,omitempty"`
}

// needsShadowColumn reports whether any property other than a pure rename
// is changing, per SPEC_FULL.md open question 2: renames are overlay-only,
// everything else allocates a shadow column.
func (c ColumnChanges) needsShadowColumn() bool {
	return c.Nullable != nil || c.Type != nil || c.Default != nil
}

// OpAlterColumn changes a column's name, nullability, type or default. A
// pure rename only touches the overlay; any other change allocates a
// shadow column wired with bidirectional sync triggers.
type OpAlterColumn struct {
	Table   string        `json:"table"`
	Column  string        `json:"column"`
	Up      *string       `json:"up,omitempty"`
	Down    *string       `json:"down,omitempty"`
	Changes ColumnChanges `json:"changes"`
}

var _ Action = (*OpAlterColumn)(nil)

func (o *OpAlterColumn) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if o.Column == "" {
		return FieldRequiredError{Field: "column"}
	}
	if o.Changes.Name == nil && !o.Changes.needsShadowColumn() {
		return AlterColumnNoChangesError{Table: o.Table, Column: o.Column}
	}
	if o.Changes.needsShadowColumn() && (o.Up == nil || o.Down == nil) {
		return ValidationError{Reason: fmt.Sprintf("alter_column on %q.%q changing type/nullable/default requires both up and down", o.Table, o.Column)}
	}
	return nil
}

func (o *OpAlterColumn) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	table := s.Table(o.Table)
	if table == nil {
		return TableDoesNotExistError{Name: o.Table}
	}
	col := table.Column(o.Column)
	if col == nil {
		return ColumnDoesNotExistError{Table: o.Table, Column: o.Column}
	}

	if !o.Changes.needsShadowColumn() {
		// Pure rename: nothing to do physically, UpdateSchema handles it.
		return nil
	}

	prefix := ctxInfo.Prefix()
	shadow := shadowColumnName(prefix, o.Column)

	colType := "text"
	if o.Changes.Type != nil {
		colType = *o.Changes.Type
	} else {
		// Keep the original type: introspect it from information_schema.
		cols, err := schema.GetTable(ctx, conn, s, o.Table)
		if err != nil {
			return fmt.Errorf("introspecting %q before allocating shadow column: %w", o.Table, err)
		}
		for _, c := range cols {
			if c.LogicalName == o.Column {
				colType = c.DataType
				break
			}
		}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", qi(table.RealName), qi(shadow), colType)
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("allocating shadow column for %q: %w", o.Column, err)
	}

	// up populates the shadow column from writes via the old schema; down
	// populates the original column from writes via the new schema.
	if err := createSyncTrigger(ctx, conn, table, prefix, shadow, *o.Up); err != nil {
		return fmt.Errorf("creating up trigger for %q: %w", o.Column, err)
	}
	if err := createSyncTrigger(ctx, conn, table, prefix+"_down", col.ActiveColumn(), *o.Down); err != nil {
		return fmt.Errorf("creating down trigger for %q: %w", o.Column, err)
	}

	if err := backfill.Run(ctx, conn, table.RealName, table.PrimaryKey, backfill.Options{}, nil); err != nil {
		return fmt.Errorf("backfilling %q: %w", o.Table, err)
	}

	idxs, err := columnIndexes(ctx, conn, table.RealName, col.ActiveColumn())
	if err != nil {
		return fmt.Errorf("looking up indexes on %q: %w", o.Column, err)
	}
	for _, idx := range idxs {
		if err := recreateIndexOnShadow(ctx, conn, table.RealName, shadow, prefix, idx); err != nil {
			return fmt.Errorf("recreating index %q on shadow column: %w", idx.Name, err)
		}
	}

	if o.Changes.Nullable != nil && !*o.Changes.Nullable {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s IS NOT NULL) NOT VALID",
			qi(table.RealName), qi(notNullConstraintName(prefix)), qi(shadow))
		if err := runIgnoringDuplicate(ctx, conn, stmt); err != nil {
			return fmt.Errorf("adding not-null constraint on shadow column: %w", err)
		}
	}

	return nil
}

func (o *OpAlterColumn) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {
	if o.Changes.needsShadowColumn() {
		s.ChangeColumn(o.Table, o.Column, func(c *schema.ColumnChanges) {
			c.PushBackingColumn(shadowColumnName(ctxInfo.Prefix(), o.Column))
		})
	}

	if o.Changes.Name != nil {
		newName := *o.Changes.Name
		table := s.Table(o.Table)
		if table != nil {
			if c := table.Column(o.Column); c != nil {
				c.CurrentName = newName
			}
		}
	}
}

func (o *OpAlterColumn) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	if !o.Changes.needsShadowColumn() {
		if o.Changes.Name != nil {
			stmt := fmt.Sprintf("ALTER TABLE IF EXISTS %s RENAME COLUMN %s TO %s", qi(o.Table), qi(o.Column), qi(*o.Changes.Name))
			if err := conn.Run(ctx, stmt); err != nil {
				return nil, fmt.Errorf("renaming column %q: %w", o.Column, err)
			}
		}
		return nil, nil
	}

	prefix := ctxInfo.Prefix()
	shadow := shadowColumnName(prefix, o.Column)
	finalName := o.Column
	if o.Changes.Name != nil {
		finalName = *o.Changes.Name
	}

	// Capture the indexes that still reference the original column so their
	// shadow counterparts (built in Begin) can be renamed back to these
	// names once the original column, and its indexes, are gone.
	idxs, err := columnIndexes(ctx, conn, o.Table, o.Column)
	if err != nil {
		return nil, fmt.Errorf("looking up indexes on %q: %w", o.Column, err)
	}

	if err := dropSyncTrigger(ctx, conn, o.Table, prefix, shadow); err != nil {
		return nil, fmt.Errorf("dropping up trigger: %w", err)
	}
	if err := dropSyncTrigger(ctx, conn, o.Table, prefix+"_down", o.Column); err != nil {
		return nil, fmt.Errorf("dropping down trigger: %w", err)
	}

	if o.Changes.Nullable != nil && !*o.Changes.Nullable {
		constraint := notNullConstraintName(prefix)
		if err := conn.Run(ctx, fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", qi(o.Table), qi(constraint))); err != nil {
			return nil, fmt.Errorf("validating not-null constraint on shadow column: %w", err)
		}
		if err := conn.Run(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", qi(o.Table), qi(shadow))); err != nil {
			return nil, fmt.Errorf("setting shadow column not null: %w", err)
		}
		if err := conn.Run(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", qi(o.Table), qi(constraint))); err != nil {
			return nil, fmt.Errorf("dropping staging constraint: %w", err)
		}
	}

	dropOriginal := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", qi(o.Table), qi(o.Column))
	if err := conn.Run(ctx, dropOriginal); err != nil {
		return nil, fmt.Errorf("dropping original column %q: %w", o.Column, err)
	}

	rename := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", qi(o.Table), qi(shadow), qi(finalName))
	if err := conn.Run(ctx, rename); err != nil {
		return nil, fmt.Errorf("promoting shadow column for %q: %w", o.Column, err)
	}

	// Rebuild dependent indexes: the shadow-column index built in Begin
	// takes over the original index's name now that the original column
	// (and the index on it) is gone.
	for _, idx := range idxs {
		shadowIdx := shadowIndexName(prefix, idx.Name)
		stmt := fmt.Sprintf("ALTER INDEX IF EXISTS %s RENAME TO %s", qi(shadowIdx), qi(idx.Name))
		if err := conn.Run(ctx, stmt); err != nil {
			return nil, fmt.Errorf("rebuilding index %q on %q: %w", idx.Name, finalName, err)
		}
	}

	return nil, nil
}

func (o *OpAlterColumn) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	if !o.Changes.needsShadowColumn() {
		return nil
	}

	prefix := ctxInfo.Prefix()
	shadow := shadowColumnName(prefix, o.Column)

	if err := conn.Run(ctx, fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP COLUMN IF EXISTS %s", qi(o.Table), qi(shadow))); err != nil {
		return fmt.Errorf("dropping shadow column for %q: %w", o.Column, err)
	}
	if err := dropSyncTrigger(ctx, conn, o.Table, prefix, shadow); err != nil {
		return fmt.Errorf("dropping up trigger: %w", err)
	}
	return dropSyncTrigger(ctx, conn, o.Table, prefix+"_down", o.Column)
}
