// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
)

// MigrationSchemaName returns the name of the per-migration schema that
// exposes the logical view of the database for application code running
// against `migrationName`.
func MigrationSchemaName(migrationName string) string {
	return "migration_" + migrationName
}

// CreateForMigration creates the `migration_<name>` schema (if absent) and
// one view per logical table, aliasing physical columns to their logical
// names per the overlay.
func CreateForMigration(ctx context.Context, conn db.Connection, s *Schema, migrationName string) error {
	schemaName := MigrationSchemaName(migrationName)

	if err := conn.Run(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schemaName))); err != nil {
		return fmt.Errorf("creating schema %q: %w", schemaName, err)
	}

	tables, err := GetTables(ctx, conn, s)
	if err != nil {
		return fmt.Errorf("listing tables for migration schema: %w", err)
	}

	for _, logicalTable := range tables {
		cols, err := GetTable(ctx, conn, s, logicalTable)
		if err != nil {
			return fmt.Errorf("introspecting table %q for view: %w", logicalTable, err)
		}
		if len(cols) == 0 {
			continue
		}

		selectList := make([]string, len(cols))
		for i, c := range cols {
			selectList[i] = fmt.Sprintf("%s AS %s", pq.QuoteIdentifier(c.PhysicalName), pq.QuoteIdentifier(c.LogicalName))
		}

		realTable := s.RealTableName(logicalTable)
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS SELECT %s FROM %s",
			pq.QuoteIdentifier(schemaName),
			pq.QuoteIdentifier(logicalTable),
			strings.Join(selectList, ", "),
			pq.QuoteIdentifier(realTable),
		)
		if err := conn.Run(ctx, stmt); err != nil {
			return fmt.Errorf("creating view for table %q: %w", logicalTable, err)
		}
	}

	return nil
}

// DropForMigration drops the `migration_<name>` schema and everything in
// it, used when retiring the previous migration's views on complete, or
// the in-flight migration's views on abort.
func DropForMigration(ctx context.Context, conn db.Connection, migrationName string) error {
	schemaName := MigrationSchemaName(migrationName)
	return conn.Run(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(schemaName)))
}

// isNewSchemaFunctionSQL is the helper function triggers consult to decide
// whether the write they are observing originated from a session attached
// to the new (migration_<target>) schema, so that bidirectional sync
// triggers can avoid ping-ponging updates between the two schemas.
const isNewSchemaFunctionSQL = `
CREATE OR REPLACE FUNCTION reshape.is_new_schema() RETURNS boolean AS $$
BEGIN
	IF current_setting('reshape.is_new_schema', true) = 'YES' THEN
		RETURN true;
	END IF;
	RETURN current_setting('search_path', true) = %s;
END;
$$ LANGUAGE plpgsql;
`

// InstallIsNewSchemaHelper (re)installs reshape.is_new_schema() bound to
// target, the last migration's name in the batch being applied.
func InstallIsNewSchemaHelper(ctx context.Context, conn db.Connection, target string) error {
	stmt := fmt.Sprintf(isNewSchemaFunctionSQL, pq.QuoteLiteral(MigrationSchemaName(target)))
	if err := conn.Run(ctx, "CREATE SCHEMA IF NOT EXISTS reshape"); err != nil {
		return fmt.Errorf("creating reshape schema: %w", err)
	}
	if err := conn.Run(ctx, stmt); err != nil {
		return fmt.Errorf("installing reshape.is_new_schema(): %w", err)
	}
	return nil
}

// DropIsNewSchemaHelper drops the helper function once a migration is
// fully completed or aborted.
func DropIsNewSchemaHelper(ctx context.Context, conn db.Connection) error {
	return conn.Run(ctx, "DROP FUNCTION IF EXISTS reshape.is_new_schema() CASCADE")
}
