// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"fmt"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/schema"
)

// OpCustom runs hand-written SQL for changes the other actions can't
// express. Each snippet is optional and runs verbatim; it is the
// migration author's responsibility to make Up and Down no-ops when
// re-invoked, since the engine may retry a Begin or Abort that was
// interrupted mid-flight.
type OpCustom struct {
	Up          string `json:"up,omitempty"`
	Down        string `json:"down,omitempty"`
	CompleteSQL string `json:"complete,omitempty"`
}

var _ Action = (*OpCustom)(nil)

func (o *OpCustom) Validate() error {
	if o.Up == "" && o.Down == "" && o.CompleteSQL == "" {
		return ValidationError{Reason: "custom action requires at least one of up, down, complete"}
	}
	return nil
}

func (o *OpCustom) Begin(ctx context.Context, conn db.Connection, ctxInfo MigrationContext, s *schema.Schema) error {
	if o.Up == "" {
		return nil
	}
	if err := conn.Run(ctx, o.Up); err != nil {
		return fmt.Errorf("running custom up SQL: %w", err)
	}
	return nil
}

func (o *OpCustom) UpdateSchema(ctx context.Context, ctxInfo MigrationContext, s *schema.Schema) {}

func (o *OpCustom) Complete(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) (*db.Transaction, error) {
	if o.CompleteSQL == "" {
		return nil, nil
	}
	if err := conn.Run(ctx, o.CompleteSQL); err != nil {
		return nil, fmt.Errorf("running custom complete SQL: %w", err)
	}
	return nil, nil
}

func (o *OpCustom) Abort(ctx context.Context, conn db.Connection, ctxInfo MigrationContext) error {
	if o.Down == "" {
		return nil
	}
	if err := conn.Run(ctx, o.Down); err != nil {
		return fmt.Errorf("running custom down SQL: %w", err)
	}
	return nil
}
