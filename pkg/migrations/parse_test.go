// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "add_first_name.json")
	body := `{
		"description": "split name into first/last",
		"actions": [
			{"type": "add_column", "table": "users", "column": {"name": "first", "type": "text", "nullable": false}, "up": {"simple": "(STRING_TO_ARRAY(name, ' '))[1]"}}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "add_first_name", m.Name)
	assert.Equal(t, "split name into first/last", m.Description)
	require.Len(t, m.Actions, 1)

	add, ok := m.Actions[0].(*taggedAddColumn)
	require.True(t, ok)
	assert.Equal(t, "users", add.Table)
	assert.Equal(t, "first", add.Column.Name)
	require.NotNil(t, add.Up.Simple)
	assert.Contains(t, *add.Up.Simple, "STRING_TO_ARRAY")
}

func TestParseFileJSONRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	body := `{"actions": [{"type": "teleport_column", "table": "users"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := ParseFile(path)
	assert.Error(t, err)
}

func TestParseFileTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rename_users.toml")
	body := `
description = "rename the users table"

[[actions]]
type = "rename_table"
table = "users"
to = "accounts"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rename_users", m.Name)
	require.Len(t, m.Actions, 1)

	rename, ok := m.Actions[0].(*taggedRenameTable)
	require.True(t, ok)
	assert.Equal(t, "users", rename.Table)
	assert.Equal(t, "accounts", rename.To)
}

func TestParseFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migration.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x"), 0o644))

	_, err := ParseFile(path)
	assert.Error(t, err)
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "add_first_name", NameFromPath("/a/b/add_first_name.json"))
}
