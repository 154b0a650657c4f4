// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
)

// runIgnoringDuplicate runs stmt wrapped in a guarded DO $$ ... EXCEPTION
// block that swallows duplicate_object, simulating "IF NOT EXISTS" for the
// DDL statements that don't support it natively (e.g. ADD CONSTRAINT).
func runIgnoringDuplicate(ctx context.Context, conn db.Connection, stmt string) error {
	guarded := fmt.Sprintf(`DO $$ BEGIN
		%s;
	EXCEPTION
		WHEN duplicate_object THEN NULL;
	END $$;`, stmt)
	return conn.Run(ctx, guarded)
}

// runIgnoringUndefined runs stmt wrapped in a guarded DO $$ ... EXCEPTION
// block that swallows undefined_object, used by abort/complete paths that
// drop something that may already be gone from a previous, interrupted
// attempt.
func runIgnoringUndefined(ctx context.Context, conn db.Connection, stmt string) error {
	guarded := fmt.Sprintf(`DO $$ BEGIN
		%s;
	EXCEPTION
		WHEN undefined_object THEN NULL;
	END $$;`, stmt)
	return conn.Run(ctx, guarded)
}

// notNullConstraintName deterministically names the NOT VALID CHECK
// constraint add_column uses to stage a NOT NULL requirement.
func notNullConstraintName(prefix string) string {
	return prefix + "_not_null"
}

// shadowColumnName names the physical shadow column alter_column allocates
// when a type/nullable/default change requires one.
func shadowColumnName(prefix, column string) string {
	return column + "__reshape_" + prefix
}

// shadowIndexName names the index alter_column builds on a shadow column
// before it's renamed back to its original name at Complete.
func shadowIndexName(prefix, indexName string) string {
	return indexName + "__reshape_" + prefix
}

// indexInfo describes a single-column index discovered by columnIndexes,
// enough to recreate an equivalent one on a shadow column.
type indexInfo struct {
	Name   string
	Unique bool
	Method string
}

// columnIndexes returns every single-column index defined on realTable's
// physicalColumn, used by alter_column to recreate an equivalent index on
// the shadow column and later rename it back once the original is dropped.
func columnIndexes(ctx context.Context, conn db.Connection, realTable, physicalColumn string) ([]indexInfo, error) {
	rows, err := conn.QueryWithParams(ctx, `
		SELECT ix.relname, i.indisunique, am.amname
		FROM pg_index i
		JOIN pg_class ix ON ix.oid = i.indexrelid
		JOIN pg_class tbl ON tbl.oid = i.indrelid
		JOIN pg_am am ON am.oid = ix.relam
		JOIN pg_attribute att ON att.attrelid = i.indrelid AND att.attnum = i.indkey[0]
		WHERE tbl.relname = $1 AND att.attname = $2 AND i.indnatts = 1`, realTable, physicalColumn)
	if err != nil {
		return nil, fmt.Errorf("listing indexes on %q: %w", physicalColumn, err)
	}
	defer rows.Close()

	var out []indexInfo
	for rows.Next() {
		var idx indexInfo
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Method); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// recreateIndexOnShadow builds a CONCURRENTLY index on shadowColumn
// equivalent to idx (same uniqueness and access method), named so it can be
// renamed back to idx.Name once the original column is gone.
func recreateIndexOnShadow(ctx context.Context, conn db.Connection, realTable, shadowColumn, prefix string, idx indexInfo) error {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX CONCURRENTLY IF NOT EXISTS %s ON %s USING %s (%s)",
		unique, qi(shadowIndexName(prefix, idx.Name)), qi(realTable), idx.Method, qi(shadowColumn))
	return conn.Run(ctx, stmt)
}

func qi(s string) string { return pq.QuoteIdentifier(s) }
