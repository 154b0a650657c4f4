// SPDX-License-Identifier: Apache-2.0

// Package migrations defines the declarative action set and the Migration
// type that groups an ordered list of actions under a name.
package migrations

import (
	"encoding/json"
	"fmt"
)

// Migration is an ordered, named list of actions. Once applied it is
// immutable and recorded in the reshape.migrations ledger.
type Migration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Actions     Actions `json:"actions"`
}

// Equal reports whether two migrations have the same name and pairwise
// equal, in-order serialized actions, the equality rule the orchestrator
// uses to diff a supplied plan against the applied ledger.
func (m *Migration) Equal(other *Migration) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.Name != other.Name {
		return false
	}
	if len(m.Actions) != len(other.Actions) {
		return false
	}

	for i := range m.Actions {
		a, errA := json.Marshal(m.Actions[i])
		b, errB := json.Marshal(other.Actions[i])
		if errA != nil || errB != nil || string(a) != string(b) {
			return false
		}
	}
	return true
}

// Validate returns a descriptive error if the migration cannot be applied,
// e.g. a missing name or an empty action list.
func (m *Migration) Validate() error {
	if m.Name == "" {
		return ValidationError{Reason: "migration name is required"}
	}
	if len(m.Actions) == 0 {
		return ValidationError{Reason: fmt.Sprintf("migration %q has no actions", m.Name)}
	}
	for _, a := range m.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("migration %q: %w", m.Name, err)
		}
	}
	return nil
}
