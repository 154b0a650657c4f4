// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// InconsistentHistoryError is returned when a migration already recorded
// in reshape.migrations is absent from (or differs from) the supplied
// plan at the same position.
type InconsistentHistoryError struct {
	Index        int
	RecordedName string
	SuppliedName string
}

func (e InconsistentHistoryError) Error() string {
	if e.SuppliedName == "" {
		return fmt.Sprintf("migration history is inconsistent: applied migration %q at index %d is missing from the supplied plan", e.RecordedName, e.Index)
	}
	return fmt.Sprintf("migration history is inconsistent: applied migration %q at index %d does not match supplied migration %q", e.RecordedName, e.Index, e.SuppliedName)
}

// DivergentHistoryError is returned when an in-progress migration set is
// not a prefix of the supplied migration set.
type DivergentHistoryError struct {
	InProgress string
}

func (e DivergentHistoryError) Error() string {
	return fmt.Sprintf("in-progress migration %q diverges from the supplied plan; abort before re-running migrate", e.InProgress)
}

// DirtyApplyingError is returned when a previous migrate call transitioned
// to Applying but never reached InProgress, most likely due to a crash.
type DirtyApplyingError struct{}

func (e DirtyApplyingError) Error() string {
	return "a previous migrate call never completed (state is Applying); re-run migrate, it is safe to retry"
}

// AbortInProgressError is returned when migrate is called while an abort
// is in progress.
type AbortInProgressError struct{}

func (e AbortInProgressError) Error() string {
	return "an abort is already in progress; finish it before running migrate"
}

// CompleteInProgressError is returned when abort is called while a
// complete is in progress.
type CompleteInProgressError struct{}

func (e CompleteInProgressError) Error() string {
	return "a complete is already in progress; it cannot be aborted, re-run complete"
}

// NoMigrationInProgressError is returned by complete when the FSM is Idle.
// Abort treats an Idle FSM as a no-op and returns nil.
type NoMigrationInProgressError struct{}

func (e NoMigrationInProgressError) Error() string {
	return "no migration is in progress"
}
