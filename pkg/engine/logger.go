// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/pterm/pterm"

	"github.com/reshapedb/reshape/pkg/migrations"
)

// Logger reports orchestrator activity: migration/action lifecycle
// transitions and backfill progress (the engine itself never calls
// LogBackfillProgress). NewNoopLogger is the default so the engine stays
// silent when embedded as a library.
type Logger interface {
	LogMigrationStart(*migrations.Migration)
	LogMigrationComplete(*migrations.Migration)
	LogMigrationAbort(*migrations.Migration)

	LogActionBegin(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action)
	LogActionComplete(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action)
	LogActionAbort(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action)

	LogBackfillProgress(table string, done, total int64)
}

type noopLogger struct{}

// NewNoopLogger returns a Logger whose methods do nothing.
func NewNoopLogger() Logger { return &noopLogger{} }

func (noopLogger) LogMigrationStart(*migrations.Migration)    {}
func (noopLogger) LogMigrationComplete(*migrations.Migration) {}
func (noopLogger) LogMigrationAbort(*migrations.Migration)    {}
func (noopLogger) LogActionBegin(string, migrations.MigrationContext, migrations.Action) {
}
func (noopLogger) LogActionComplete(string, migrations.MigrationContext, migrations.Action) {
}
func (noopLogger) LogActionAbort(string, migrations.MigrationContext, migrations.Action) {
}
func (noopLogger) LogBackfillProgress(string, int64, int64) {}

type ptermLogger struct {
	logger pterm.Logger
}

// NewLogger returns a Logger that writes through pterm.DefaultLogger.
func NewLogger() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger}
}

func (l *ptermLogger) LogMigrationStart(m *migrations.Migration) {
	l.logger.Info("starting migration", l.logger.Args("name", m.Name, "actions", len(m.Actions)))
}

func (l *ptermLogger) LogMigrationComplete(m *migrations.Migration) {
	l.logger.Info("completed migration", l.logger.Args("name", m.Name))
}

func (l *ptermLogger) LogMigrationAbort(m *migrations.Migration) {
	l.logger.Info("aborted migration", l.logger.Args("name", m.Name))
}

func (l *ptermLogger) LogActionBegin(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action) {
	l.logger.Debug("beginning action", l.logger.Args("migration", migrationName, "prefix", ctxInfo.Prefix()))
}

func (l *ptermLogger) LogActionComplete(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action) {
	l.logger.Debug("completing action", l.logger.Args("migration", migrationName, "prefix", ctxInfo.Prefix()))
}

func (l *ptermLogger) LogActionAbort(migrationName string, ctxInfo migrations.MigrationContext, a migrations.Action) {
	l.logger.Debug("aborting action", l.logger.Args("migration", migrationName, "prefix", ctxInfo.Prefix()))
}

func (l *ptermLogger) LogBackfillProgress(table string, done, total int64) {
	l.logger.Info("backfilling", l.logger.Args("table", table, "done", done, "total", total))
}
