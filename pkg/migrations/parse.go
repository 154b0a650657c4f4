// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// rawMigration mirrors Migration but leaves Actions as raw JSON so the
// concrete Action variant can be resolved from each object's `type` tag.
type rawMigration struct {
	Name        string            `json:"name" toml:"name"`
	Description string            `json:"description,omitempty" toml:"description"`
	Actions     []json.RawMessage `json:"actions" toml:"-"`
}

// ParseFile reads a migration from disk. The format is selected by file
// extension: `.toml` via BurntSushi/toml, `.json` via encoding/json
// validated against an embedded JSON Schema. The migration name defaults
// to the file's stem.
func ParseFile(path string) (*Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading migration file %q: %w", path, err)
	}

	var m *Migration
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		m, err = parseTOML(data)
	case ".json":
		m, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("migration file %q: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing migration file %q: %w", path, err)
	}

	if m.Name == "" {
		m.Name = NameFromPath(path)
	}
	return m, nil
}

// NameFromPath derives the default migration name from a file path: its
// base name with the extension stripped.
func NameFromPath(path string) string {
	stem := filepath.Base(path)
	return strings.TrimSuffix(stem, filepath.Ext(stem))
}

func parseTOML(data []byte) (*Migration, error) {
	var raw struct {
		Name        string                   `toml:"name"`
		Description string                   `toml:"description"`
		Actions     []map[string]interface{} `toml:"actions"`
	}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, err
	}

	actions := make([]json.RawMessage, len(raw.Actions))
	for i, a := range raw.Actions {
		encoded, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("re-encoding action %d: %w", i, err)
		}
		actions[i] = encoded
	}

	return decodeActions(raw.Name, raw.Description, actions)
}

func parseJSON(data []byte) (*Migration, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	var raw rawMigration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeActions(raw.Name, raw.Description, raw.Actions)
}

func decodeActions(name, description string, raw []json.RawMessage) (*Migration, error) {
	actions := make(Actions, len(raw))
	for i, body := range raw {
		var tagged struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &tagged); err != nil {
			return nil, fmt.Errorf("decoding action %d: %w", i, err)
		}

		action, err := newAction(tagged.Type)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(action); err != nil {
			return nil, fmt.Errorf("decoding action %d (%s): %w", i, tagged.Type, err)
		}

		actions[i] = action
	}

	return &Migration{Name: name, Description: description, Actions: actions}, nil
}

// UnmarshalJSON decodes each element into the concrete variant named by its
// `type` tag, the inverse of how the tagged variants marshal.
func (a *Actions) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m, err := decodeActions("", "", raw)
	if err != nil {
		return err
	}
	*a = m.Actions
	return nil
}

// actionType tags every JSON-decoded action with the discriminant it was
// parsed from, since json.Unmarshal into an embedding struct would
// otherwise reject the extra `type` field under DisallowUnknownFields.
type actionType struct {
	Type string `json:"type"`
}

func newAction(tag string) (Action, error) {
	switch tag {
	case "create_table":
		return &taggedCreateTable{}, nil
	case "add_column":
		return &taggedAddColumn{}, nil
	case "alter_column":
		return &taggedAlterColumn{}, nil
	case "remove_column":
		return &taggedRemoveColumn{}, nil
	case "add_index":
		return &taggedAddIndex{}, nil
	case "remove_index":
		return &taggedRemoveIndex{}, nil
	case "add_foreign_key":
		return &taggedAddForeignKey{}, nil
	case "remove_foreign_key":
		return &taggedRemoveForeignKey{}, nil
	case "create_enum":
		return &taggedCreateEnum{}, nil
	case "remove_enum":
		return &taggedRemoveEnum{}, nil
	case "remove_table":
		return &taggedRemoveTable{}, nil
	case "rename_table":
		return &taggedRenameTable{}, nil
	case "custom":
		return &taggedCustom{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", tag)
	}
}

// The tagged* types embed both the `type` discriminant (so strict
// decoding doesn't choke on it) and the concrete action, and return the
// inner action as Action once decoded. Each simply wraps its Op* sibling.
type (
	taggedCreateTable struct {
		actionType
		OpCreateTable
	}
	taggedAddColumn struct {
		actionType
		OpAddColumn
	}
	taggedAlterColumn struct {
		actionType
		OpAlterColumn
	}
	taggedRemoveColumn struct {
		actionType
		OpRemoveColumn
	}
	taggedAddIndex struct {
		actionType
		OpAddIndex
	}
	taggedRemoveIndex struct {
		actionType
		OpRemoveIndex
	}
	taggedAddForeignKey struct {
		actionType
		OpAddForeignKey
	}
	taggedRemoveForeignKey struct {
		actionType
		OpRemoveForeignKey
	}
	taggedCreateEnum struct {
		actionType
		OpCreateEnum
	}
	taggedRemoveEnum struct {
		actionType
		OpRemoveEnum
	}
	taggedRemoveTable struct {
		actionType
		OpRemoveTable
	}
	taggedRenameTable struct {
		actionType
		OpRenameTable
	}
	taggedCustom struct {
		actionType
		OpCustom
	}
)

// compiledSchema lazily compiles the embedded JSON Schema the first time a
// JSON migration is parsed.
var compiledSchema *jsonschema.Schema

func validateAgainstSchema(data []byte) error {
	if compiledSchema == nil {
		c := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(migrationSchemaJSON))
		if err != nil {
			return fmt.Errorf("parsing embedded migration schema: %w", err)
		}
		if err := c.AddResource("migration.json", doc); err != nil {
			return fmt.Errorf("loading embedded migration schema: %w", err)
		}
		compiledSchema, err = c.Compile("migration.json")
		if err != nil {
			return fmt.Errorf("compiling embedded migration schema: %w", err)
		}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing migration JSON: %w", err)
	}
	if err := compiledSchema.Validate(inst); err != nil {
		return fmt.Errorf("migration does not satisfy schema: %w", err)
	}
	return nil
}

// migrationSchemaJSON is the minimal structural schema: it only pins down
// the envelope (name/description/actions, each action carrying a `type`
// tag drawn from the known set) and leaves per-action field validation to
// each Action's own Validate.
const migrationSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["actions"],
	"properties": {
		"name": {"type": "string"},
		"description": {"type": "string"},
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {
						"enum": [
							"create_table", "add_column", "alter_column", "remove_column",
							"add_index", "remove_index", "add_foreign_key", "remove_foreign_key",
							"create_enum", "remove_enum", "remove_table", "rename_table", "custom"
						]
					}
				}
			}
		}
	}
}`

// knownActionTypes returns the valid `type` tags, sorted.
func knownActionTypes() []string {
	tags := []string{
		"create_table", "add_column", "alter_column", "remove_column",
		"add_index", "remove_index", "add_foreign_key", "remove_foreign_key",
		"create_enum", "remove_enum", "remove_table", "rename_table", "custom",
	}
	slices.Sort(tags)
	return tags
}
