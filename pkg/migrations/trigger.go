// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/migrations/templates"
	"github.com/reshapedb/reshape/pkg/schema"
)

var templateFuncs = template.FuncMap{
	"qi": pq.QuoteIdentifier,
	"ql": pq.QuoteLiteral,
}

func execTemplate(name, body string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing %s template: %w", name, err)
	}
	return buf.String(), nil
}

// syncTriggerConfig is the data a SyncFunction/SyncTrigger pair is rendered
// from.
type syncTriggerConfig struct {
	FunctionName   string
	TriggerName    string
	TableName      string
	TargetColumn   string
	Expression     string
	LogicalColumns map[string]string // logical name -> physical name
}

// TriggerFunctionName deterministically names the trigger function created
// for (prefix, logical column), so a retry or the `abort` path can find and
// drop it without shared state.
func TriggerFunctionName(prefix, column string) string {
	return prefix + "_trigger_" + column
}

func TriggerName(prefix, column string) string {
	return prefix + "_trigger_" + column
}

// createSyncTrigger installs a BEFORE INSERT OR UPDATE trigger on table
// that evaluates expr (which may reference any of the table's logical
// column names) and assigns the result into targetColumn, skipped entirely
// when the write originated from the new schema.
func createSyncTrigger(ctx context.Context, conn db.Connection, t *schema.TableChanges, prefix, targetColumn, expr string) error {
	logicalColumns := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		if c.Removed {
			continue
		}
		logicalColumns[c.CurrentName] = c.ActiveColumn()
	}

	cfg := syncTriggerConfig{
		FunctionName:   TriggerFunctionName(prefix, targetColumn),
		TriggerName:    TriggerName(prefix, targetColumn),
		TableName:      t.RealName,
		TargetColumn:   targetColumn,
		Expression:     expr,
		LogicalColumns: logicalColumns,
	}

	funcSQL, err := execTemplate("sync-function", templates.SyncFunction, cfg)
	if err != nil {
		return err
	}
	if err := conn.Run(ctx, funcSQL); err != nil {
		return fmt.Errorf("creating trigger function: %w", err)
	}

	triggerSQL, err := execTemplate("sync-trigger", templates.SyncTrigger, cfg)
	if err != nil {
		return err
	}
	if err := conn.Run(ctx, triggerSQL); err != nil {
		return fmt.Errorf("creating trigger: %w", err)
	}

	return nil
}

// dropSyncTrigger drops both the trigger and its owning function, guarded
// with IF EXISTS/CASCADE so a retry is a no-op.
func dropSyncTrigger(ctx context.Context, conn db.Connection, table, prefix, targetColumn string) error {
	funcName := TriggerFunctionName(prefix, targetColumn)
	return conn.Run(ctx, fmt.Sprintf("DROP FUNCTION IF EXISTS %s CASCADE", pq.QuoteIdentifier(funcName)))
}

// crossTableTriggerConfig configures a trigger that mirrors writes from one
// table into a column of another, used by add_column/remove_column's
// `Update{from_table, value, where}` cross-table variant.
type crossTableTriggerConfig struct {
	FunctionName   string
	TriggerName    string
	FromTable      string
	TargetTable    string
	TargetColumn   string
	Value          string
	Where          string
	GuardNewSchema string
}

func createCrossTableTrigger(ctx context.Context, conn db.Connection, prefix, name, fromTable, targetTable, targetColumn, value, where string, guardNewSchema bool) error {
	cfg := crossTableTriggerConfig{
		FunctionName:   TriggerFunctionName(prefix, name),
		TriggerName:    TriggerName(prefix, name),
		FromTable:      fromTable,
		TargetTable:    targetTable,
		TargetColumn:   targetColumn,
		Value:          value,
		Where:          where,
		GuardNewSchema: boolLiteral(guardNewSchema),
	}

	funcSQL, err := execTemplate("cross-table-function", templates.CrossTableFunction, cfg)
	if err != nil {
		return err
	}
	if err := conn.Run(ctx, funcSQL); err != nil {
		return fmt.Errorf("creating cross-table trigger function: %w", err)
	}

	triggerSQL, err := execTemplate("cross-table-trigger", templates.CrossTableTrigger, cfg)
	if err != nil {
		return err
	}
	if err := conn.Run(ctx, triggerSQL); err != nil {
		return fmt.Errorf("creating cross-table trigger: %w", err)
	}

	return nil
}

func boolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
