// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"add_column ok", &OpAddColumn{Table: "users", Column: Column{Name: "age", DataType: "int"}}, false},
		{"add_column missing type", &OpAddColumn{Table: "users", Column: Column{Name: "age"}}, true},
		{"add_column missing table", &OpAddColumn{Column: Column{Name: "age", DataType: "int"}}, true},

		{"remove_column ok", &OpRemoveColumn{Table: "users", Column: "age"}, false},
		{"remove_column missing column", &OpRemoveColumn{Table: "users"}, true},

		{"alter_column rename ok", &OpAlterColumn{Table: "users", Column: "name", Changes: ColumnChanges{Name: strPtr("full_name")}}, false},
		{"alter_column no changes", &OpAlterColumn{Table: "users", Column: "name"}, true},
		{"alter_column type change missing up/down", &OpAlterColumn{Table: "users", Column: "age", Changes: ColumnChanges{Type: strPtr("bigint")}}, true},
		{"alter_column type change ok", &OpAlterColumn{
			Table: "users", Column: "age",
			Up: strPtr("age::bigint"), Down: strPtr("age::int"),
			Changes: ColumnChanges{Type: strPtr("bigint")},
		}, false},

		{"add_index ok", &OpAddIndex{Name: "idx_users_email", Table: "users", Columns: []string{"email"}}, false},
		{"add_index missing columns", &OpAddIndex{Name: "idx_users_email", Table: "users"}, true},

		{"remove_index ok", &OpRemoveIndex{Name: "idx_users_email"}, false},
		{"remove_index missing name", &OpRemoveIndex{}, true},

		{"add_foreign_key ok", &OpAddForeignKey{
			Table: "items", Name: "items_user_id_fkey", Columns: []string{"user_id"},
			References: ForeignKeyReference{Table: "users", Columns: []string{"id"}},
		}, false},
		{"add_foreign_key missing references", &OpAddForeignKey{Table: "items", Name: "fk", Columns: []string{"user_id"}}, true},

		{"remove_foreign_key ok", &OpRemoveForeignKey{Table: "items", Name: "items_user_id_fkey"}, false},
		{"remove_foreign_key missing name", &OpRemoveForeignKey{Table: "items"}, true},

		{"create_table ok", &OpCreateTable{Name: "widgets", Columns: []Column{{Name: "id", DataType: "serial"}}}, false},
		{"create_table missing columns", &OpCreateTable{Name: "widgets"}, true},
		{"create_table column missing type", &OpCreateTable{Name: "widgets", Columns: []Column{{Name: "id"}}}, true},

		{"remove_table ok", &OpRemoveTable{Table: "widgets"}, false},
		{"remove_table missing table", &OpRemoveTable{}, true},

		{"rename_table ok", &OpRenameTable{Table: "widgets", To: "gadgets"}, false},
		{"rename_table missing to", &OpRenameTable{Table: "widgets"}, true},

		{"create_enum ok", &OpCreateEnum{Name: "status", Values: []string{"active", "inactive"}}, false},
		{"create_enum missing values", &OpCreateEnum{Name: "status"}, true},

		{"remove_enum ok", &OpRemoveEnum{Name: "status"}, false},
		{"remove_enum missing name", &OpRemoveEnum{}, true},

		{"custom ok", &OpCustom{Up: "SELECT 1"}, false},
		{"custom empty", &OpCustom{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestColumnChangesNeedsShadowColumn(t *testing.T) {
	assert.False(t, ColumnChanges{Name: strPtr("x")}.needsShadowColumn())
	assert.True(t, ColumnChanges{Nullable: boolPtr(false)}.needsShadowColumn())
	assert.True(t, ColumnChanges{Type: strPtr("bigint")}.needsShadowColumn())
	assert.True(t, ColumnChanges{Default: strPtr("0")}.needsShadowColumn())
}
