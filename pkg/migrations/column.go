// SPDX-License-Identifier: Apache-2.0

package migrations

// Column describes the physical column add_column/create_table add, and
// the alter_column target when renaming/retyping.
type Column struct {
	Name       string               `json:"name"`
	DataType   string               `json:"type"`
	Nullable   bool                 `json:"nullable"`
	Default    *string              `json:"default,omitempty"`
	Generated  *string              `json:"generated,omitempty"`
	References *ForeignKeyReference `json:"references,omitempty"`
}

// UpdateSpec names a cross-table sync: a trigger on Table assigns Value to
// the acted-upon column, restricted to the row(s) matching Where.
type UpdateSpec struct {
	Table string `json:"table"`
	Value string `json:"value"`
	Where string `json:"where"`
}

// TransformSpec is the `up`/`down` sum type: either a same-table expression
// (Simple) or a cross-table mirror (Update).
type TransformSpec struct {
	Simple *string     `json:"simple,omitempty"`
	Update *UpdateSpec `json:"update,omitempty"`
}

func (t *TransformSpec) isCrossTable() bool {
	return t != nil && t.Update != nil
}
