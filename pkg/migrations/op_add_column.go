// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/backfill"
	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpAddColumn adds a new column, always created nullable, back-filling it
// via an `up` transform and only tightening it to NOT NULL at Complete.
type OpAddColumn struct {
	Table  string         `json:"table"`
	Column Column         `json:"column"`
	Up     *TransformSpec `json:"up,omitempty"`
}

var _ Action = (*OpAddColumn)(nil)

func (o *OpAddColumn) Validate() error {
	if o.Table == "" {
		return FieldRequiredError{Field: "table"}
	}
	if o.Column.Name == "" {
		return FieldRequiredError{Field: "column.name"}
	}
	if o.Column.DataType == "" {
		return FieldRequiredError{Field: "column.type"}
	}
	return nil
}

func (o *OpAddColumn) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	table := s.Table(o.Table)
	if table == nil {
		return TableDoesNotExistError{Name: o.Table}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		qi(table.RealName), qi(o.Column.Name), o.Column.DataType)
	if o.Column.Default != nil {
		stmt += fmt.Sprintf(" DEFAULT %s", *o.Column.Default)
	}
	if o.Column.Generated != nil {
		stmt += fmt.Sprintf(" GENERATED %s", *o.Column.Generated)
	}
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("adding column %q to %q: %w", o.Column.Name, o.Table, err)
	}

	prefix := ctxInfo.Prefix()

	if o.Up != nil {
		if o.Up.Simple != nil {
			if err := createSyncTrigger(ctx, conn, table, prefix, o.Column.Name, *o.Up.Simple); err != nil {
				return fmt.Errorf("creating up trigger for %q: %w", o.Column.Name, err)
			}
			if err := backfill.Run(ctx, conn, table.RealName, table.PrimaryKey, backfill.Options{}, nil); err != nil {
				return fmt.Errorf("backfilling %q: %w", o.Table, err)
			}
		} else if u := o.Up.Update; u != nil {
			// Cross-table sync: a forward trigger on u.Table mirrors into
			// this column, a reverse trigger on this table mirrors back,
			// breaking cycles with reshape.disable_triggers.
			if err := createCrossTableTrigger(ctx, conn, prefix, o.Column.Name+"_fwd", u.Table, table.RealName, o.Column.Name, u.Value, u.Where, false); err != nil {
				return fmt.Errorf("creating forward cross-table trigger: %w", err)
			}
			if err := createCrossTableTrigger(ctx, conn, prefix, o.Column.Name, table.RealName, u.Table, o.Column.Name, u.Value, u.Where, true); err != nil {
				return fmt.Errorf("creating reverse cross-table trigger: %w", err)
			}
			fromPK := table.PrimaryKey
			if from := s.Table(u.Table); from != nil {
				fromPK = from.PrimaryKey
			}
			if err := backfill.Run(ctx, conn, u.Table, fromPK, backfill.Options{}, nil); err != nil {
				return fmt.Errorf("backfilling %q: %w", u.Table, err)
			}
		}
	}

	if !o.Column.Nullable {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s IS NOT NULL) NOT VALID",
			qi(table.RealName), qi(notNullConstraintName(prefix)), qi(o.Column.Name))
		if err := runIgnoringDuplicate(ctx, conn, stmt); err != nil {
			return fmt.Errorf("adding not-null constraint for %q: %w", o.Column.Name, err)
		}
	}

	return nil
}

func (o *OpAddColumn) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {
	s.ChangeColumn(o.Table, o.Column.Name, func(c *schema.ColumnChanges) {})
}

func (o *OpAddColumn) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	prefix := ctxInfo.Prefix()

	if err := dropSyncTrigger(ctx, conn, o.Table, prefix, o.Column.Name); err != nil {
		return nil, fmt.Errorf("dropping trigger for %q: %w", o.Column.Name, err)
	}
	if err := dropSyncTrigger(ctx, conn, o.Table, prefix, o.Column.Name+"_fwd"); err != nil {
		return nil, fmt.Errorf("dropping forward cross-table trigger: %w", err)
	}

	if !o.Column.Nullable {
		constraint := notNullConstraintName(prefix)
		validate := fmt.Sprintf("ALTER TABLE %s VALIDATE CONSTRAINT %s", qi(o.Table), qi(constraint))
		if err := conn.Run(ctx, validate); err != nil {
			return nil, fmt.Errorf("validating not-null constraint for %q: %w", o.Column.Name, err)
		}

		setNotNull := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", qi(o.Table), qi(o.Column.Name))
		if err := conn.Run(ctx, setNotNull); err != nil {
			return nil, fmt.Errorf("setting %q not null: %w", o.Column.Name, err)
		}

		drop := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", qi(o.Table), qi(constraint))
		if err := conn.Run(ctx, drop); err != nil {
			return nil, fmt.Errorf("dropping staging constraint for %q: %w", o.Column.Name, err)
		}
	}

	return nil, nil
}

func (o *OpAddColumn) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	prefix := ctxInfo.Prefix()

	stmt := fmt.Sprintf("ALTER TABLE IF EXISTS %s DROP COLUMN IF EXISTS %s", qi(o.Table), qi(o.Column.Name))
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("dropping column %q: %w", o.Column.Name, err)
	}

	if err := dropSyncTrigger(ctx, conn, o.Table, prefix, o.Column.Name); err != nil {
		return fmt.Errorf("dropping trigger for %q: %w", o.Column.Name, err)
	}
	return dropSyncTrigger(ctx, conn, o.Table, prefix, o.Column.Name+"_fwd")
}
