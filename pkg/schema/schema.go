// SPDX-License-Identifier: Apache-2.0

// Package schema implements the in-memory overlay that maps logical
// column/table names used by application code to the physical names that
// exist on disk, and introspects `information_schema` to resolve the
// physical columns of a table.
package schema

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
)

// ColumnChanges tracks the backing columns for a single logical column.
// The last element of BackingColumns is the active physical column;
// earlier elements are shadowed predecessors kept around only so that a
// later action (or a retry) can find and drop them.
type ColumnChanges struct {
	CurrentName    string
	BackingColumns []string
	Removed        bool
}

// ActiveColumn returns the currently active physical column name: the last
// element of BackingColumns. BackingColumns is never empty.
func (c *ColumnChanges) ActiveColumn() string {
	return c.BackingColumns[len(c.BackingColumns)-1]
}

// PushBackingColumn shadows the current active physical column with a new
// one, keeping the old one around as a shadowed predecessor.
func (c *ColumnChanges) PushBackingColumn(name string) {
	c.BackingColumns = append(c.BackingColumns, name)
}

// TableChanges tracks the overlay state for a single logical table.
type TableChanges struct {
	CurrentName string
	RealName    string
	Removed     bool
	PrimaryKey  []string
	Columns     []*ColumnChanges
}

// Column returns the ColumnChanges for logicalName, or nil if none exists.
func (t *TableChanges) Column(logicalName string) *ColumnChanges {
	for _, c := range t.Columns {
		if c.CurrentName == logicalName {
			return c
		}
	}
	return nil
}

// ignoreColumns returns the set of physical column names that must be
// omitted when rendering a view over this table: every shadowed
// predecessor of every column, plus the physical column of any removed
// column.
func (t *TableChanges) ignoreColumns() map[string]bool {
	ignore := make(map[string]bool)
	for _, c := range t.Columns {
		if c.Removed {
			ignore[c.ActiveColumn()] = true
			continue
		}
		for _, backing := range c.BackingColumns[:len(c.BackingColumns)-1] {
			ignore[backing] = true
		}
	}
	return ignore
}

// Schema is the overlay: an ordered list of TableChanges built up as
// actions are applied, rebuilt from scratch on every `migrate` call.
type Schema struct {
	Tables []*TableChanges
}

// New returns an empty overlay.
func New() *Schema {
	return &Schema{}
}

// Clone returns a deep copy of the overlay. The orchestrator does not call
// it; it works on a single overlay for the whole batch.
func (s *Schema) Clone() *Schema {
	clone := &Schema{Tables: make([]*TableChanges, len(s.Tables))}
	for i, t := range s.Tables {
		nt := &TableChanges{
			CurrentName: t.CurrentName,
			RealName:    t.RealName,
			Removed:     t.Removed,
			PrimaryKey:  append([]string(nil), t.PrimaryKey...),
			Columns:     make([]*ColumnChanges, len(t.Columns)),
		}
		for j, c := range t.Columns {
			nt.Columns[j] = &ColumnChanges{
				CurrentName:    c.CurrentName,
				BackingColumns: append([]string(nil), c.BackingColumns...),
				Removed:        c.Removed,
			}
		}
		clone.Tables[i] = nt
	}
	return clone
}

// Table finds the TableChanges entry for the given logical name, or nil.
func (s *Schema) Table(currentName string) *TableChanges {
	for _, t := range s.Tables {
		if t.CurrentName == currentName {
			return t
		}
	}
	return nil
}

// ChangeTable finds or creates a TableChanges entry keyed on currentName and
// applies fn to it.
func (s *Schema) ChangeTable(currentName string, fn func(*TableChanges)) {
	t := s.Table(currentName)
	if t == nil {
		t = &TableChanges{CurrentName: currentName, RealName: currentName}
		s.Tables = append(s.Tables, t)
	}
	fn(t)
}

// ChangeColumn finds or creates a ColumnChanges entry on the named table
// keyed on currentName and applies fn to it.
func (s *Schema) ChangeColumn(tableName, currentName string, fn func(*ColumnChanges)) {
	s.ChangeTable(tableName, func(t *TableChanges) {
		c := t.Column(currentName)
		if c == nil {
			c = &ColumnChanges{CurrentName: currentName, BackingColumns: []string{currentName}}
			t.Columns = append(t.Columns, c)
		}
		fn(c)
	})
}

// RealTableName resolves a logical table name to its physical name via the
// overlay, or returns name unchanged if there is no overlay entry.
func (s *Schema) RealTableName(name string) string {
	if t := s.Table(name); t != nil {
		return t.RealName
	}
	return name
}

// Column describes a physical column as introspected from
// information_schema, renamed to its logical alias.
type Column struct {
	LogicalName  string
	PhysicalName string
	DataType     string
	Nullable     bool
}

// GetTable resolves logicalName to its physical name via the overlay, then
// introspects information_schema.columns, ordered by ordinal_position,
// applying overlay rules: shadowed predecessors and removed columns are
// dropped, survivors are aliased to their current logical name.
func GetTable(ctx context.Context, conn db.Connection, s *Schema, logicalName string) ([]Column, error) {
	realName := s.RealTableName(logicalName)

	rows, err := conn.QueryWithParams(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, realName)
	if err != nil {
		return nil, fmt.Errorf("introspecting table %q: %w", realName, err)
	}
	defer rows.Close()

	tableChanges := s.Table(logicalName)
	var ignore map[string]bool
	if tableChanges != nil {
		ignore = tableChanges.ignoreColumns()
	}

	var out []Column
	for rows.Next() {
		var physical, dataType string
		var nullable bool
		if err := rows.Scan(&physical, &dataType, &nullable); err != nil {
			return nil, err
		}

		if ignore[physical] {
			continue
		}

		logical := physical
		if tableChanges != nil {
			for _, c := range tableChanges.Columns {
				if c.ActiveColumn() == physical && !c.Removed {
					logical = c.CurrentName
					break
				}
			}
		}

		out = append(out, Column{
			LogicalName:  logical,
			PhysicalName: physical,
			DataType:     dataType,
			Nullable:     nullable,
		})
	}
	return out, rows.Err()
}

// GetTables returns the logical names of every table in `public`, minus any
// whose overlay entry has Removed set.
func GetTables(ctx context.Context, conn db.Connection, s *Schema) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	removed := make(map[string]bool)
	for _, t := range s.Tables {
		if t.Removed {
			removed[t.RealName] = true
		}
	}

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if removed[name] {
			continue
		}

		logical := name
		for _, t := range s.Tables {
			if t.RealName == name && !t.Removed {
				logical = t.CurrentName
				break
			}
		}
		out = append(out, logical)
	}
	return out, rows.Err()
}

// QuoteIdentifier quotes a Postgres identifier, re-exported for actions
// that build DDL strings.
func QuoteIdentifier(s string) string {
	return pq.QuoteIdentifier(s)
}

// SeedFromDatabase builds an overlay pre-populated with an identity entry
// (RealName/CurrentName equal, every existing column aliased to itself,
// primary key resolved from pg_index) for every base table already in
// `public`. A fresh `migrate` call starts its overlay from this instead of
// an empty Schema so that an action targeting a table or column created by
// an already-completed migration (applied in an earlier `migrate`
// invocation, so absent from the current batch's own UpdateSchema calls)
// finds it, rather than reporting it as nonexistent.
func SeedFromDatabase(ctx context.Context, conn db.Connection) (*Schema, error) {
	s := New()

	rows, err := conn.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		tableNames = append(tableNames, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, name := range tableNames {
		cols, err := physicalColumnNames(ctx, conn, name)
		if err != nil {
			return nil, err
		}
		pk, err := primaryKeyColumns(ctx, conn, name)
		if err != nil {
			return nil, err
		}
		s.ChangeTable(name, func(t *TableChanges) {
			t.PrimaryKey = pk
			for _, c := range cols {
				if t.Column(c) == nil {
					t.Columns = append(t.Columns, &ColumnChanges{CurrentName: c, BackingColumns: []string{c}})
				}
			}
		})
	}

	return s, nil
}

func physicalColumnNames(ctx context.Context, conn db.Connection, realTable string) ([]string, error) {
	rows, err := conn.QueryWithParams(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, realTable)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %q: %w", realTable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// primaryKeyColumns resolves realTable's primary key via pg_index, in the
// key's defined column order.
func primaryKeyColumns(ctx context.Context, conn db.Connection, realTable string) ([]string, error) {
	rows, err := conn.QueryWithParams(ctx, `
		SELECT att.attname
		FROM pg_index i
		JOIN pg_class cl ON cl.oid = i.indrelid
		JOIN pg_attribute att ON att.attrelid = i.indrelid AND att.attnum = ANY(i.indkey)
		WHERE cl.relname = $1 AND i.indisprimary
		ORDER BY array_position(i.indkey, att.attnum)`, realTable)
	if err != nil {
		return nil, fmt.Errorf("resolving primary key of %q: %w", realTable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
