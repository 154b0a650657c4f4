// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnChangesActiveColumn(t *testing.T) {
	c := &ColumnChanges{CurrentName: "email", BackingColumns: []string{"email"}}
	assert.Equal(t, "email", c.ActiveColumn())

	c.PushBackingColumn("email__reshape_0001_0000")
	assert.Equal(t, "email__reshape_0001_0000", c.ActiveColumn())
	assert.Equal(t, []string{"email", "email__reshape_0001_0000"}, c.BackingColumns)
}

func TestTableChangesIgnoreColumns(t *testing.T) {
	table := &TableChanges{
		CurrentName: "users",
		RealName:    "users",
		Columns: []*ColumnChanges{
			{CurrentName: "email", BackingColumns: []string{"email", "email__reshape_0001_0000"}},
			{CurrentName: "legacy_id", BackingColumns: []string{"legacy_id"}, Removed: true},
		},
	}

	ignore := table.ignoreColumns()
	assert.True(t, ignore["email"])
	assert.True(t, ignore["legacy_id"])
	assert.False(t, ignore["email__reshape_0001_0000"])
}

func TestSchemaChangeTableCreatesEntry(t *testing.T) {
	s := New()
	s.ChangeTable("users", func(t *TableChanges) {
		t.PrimaryKey = []string{"id"}
	})

	table := s.Table("users")
	require.NotNil(t, table)
	assert.Equal(t, "users", table.RealName)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)
}

func TestSchemaChangeColumnCreatesEntry(t *testing.T) {
	s := New()
	s.ChangeColumn("users", "email", func(c *ColumnChanges) {
		c.PushBackingColumn("email__reshape_0001_0000")
	})

	col := s.Table("users").Column("email")
	require.NotNil(t, col)
	assert.Equal(t, "email__reshape_0001_0000", col.ActiveColumn())
}

func TestSchemaCloneIsIndependent(t *testing.T) {
	s := New()
	s.ChangeTable("users", func(t *TableChanges) {
		t.PrimaryKey = []string{"id"}
	})
	s.ChangeColumn("users", "email", func(c *ColumnChanges) {})

	clone := s.Clone()
	clone.Table("users").PrimaryKey[0] = "mutated"
	clone.ChangeColumn("users", "email", func(c *ColumnChanges) {
		c.PushBackingColumn("shadow")
	})

	assert.Equal(t, "id", s.Table("users").PrimaryKey[0])
	assert.Equal(t, []string{"email"}, s.Table("users").Column("email").BackingColumns)
}

func TestRealTableNameFallsBackToIdentity(t *testing.T) {
	s := New()
	assert.Equal(t, "orders", s.RealTableName("orders"))

	s.ChangeTable("orders", func(t *TableChanges) {
		t.RealName = "orders_v2"
	})
	assert.Equal(t, "orders_v2", s.RealTableName("orders"))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdentifier("users"))
}
