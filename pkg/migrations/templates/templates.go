// SPDX-License-Identifier: Apache-2.0

// Package templates holds the text/template bodies used to generate the
// trigger functions and triggers that synchronise data between the old and
// new logical schemas during a migration.
package templates

// SyncFunction is the body of a BEFORE INSERT OR UPDATE trigger function
// that re-declares every logical column of a table as a local %TYPE
// variable initialised from NEW, so that the action's `up`/`down`
// expression may refer to logical column names, then assigns the result to
// the physical target column when the write did not originate from the new
// schema (guarded by reshape.is_new_schema()).
const SyncFunction = `CREATE OR REPLACE FUNCTION {{ .FunctionName | qi }}()
	RETURNS TRIGGER
	LANGUAGE PLPGSQL
	AS $$
	DECLARE
	{{- range $logical, $physical := .LogicalColumns }}
		{{ $logical | qi }} {{ $.TableName | qi }}.{{ $physical | qi }}%TYPE := NEW.{{ $physical | qi }};
	{{- end }}
	BEGIN
		IF NOT reshape.is_new_schema() THEN
			NEW.{{ .TargetColumn | qi }} = {{ .Expression }};
		END IF;
		RETURN NEW;
	END; $$
`

// SyncTrigger is the CREATE TRIGGER statement binding a SyncFunction body
// to a table's row-level BEFORE INSERT OR UPDATE events.
const SyncTrigger = `CREATE OR REPLACE TRIGGER {{ .TriggerName | qi }}
	BEFORE INSERT OR UPDATE
	ON {{ .TableName | qi }}
	FOR EACH ROW
	EXECUTE PROCEDURE {{ .FunctionName | qi }}();
`

// CrossTableFunction is the body of a trigger installed on a *different*
// table than the one being migrated (the `Update{from_table, ...}` case of
// add_column/remove_column): on a row event in FromTable, it updates the
// target table via the supplied `value`/`where` expressions, disabling the
// reverse trigger for the duration to avoid an infinite ping-pong.
const CrossTableFunction = `CREATE OR REPLACE FUNCTION {{ .FunctionName | qi }}()
	RETURNS TRIGGER
	LANGUAGE PLPGSQL
	AS $$
	BEGIN
		IF reshape.is_new_schema() = {{ .GuardNewSchema }} THEN
			RETURN NEW;
		END IF;

		PERFORM set_config('reshape.disable_triggers', 'YES', true);
		UPDATE {{ .TargetTable | qi }} SET {{ .TargetColumn | qi }} = {{ .Value }} WHERE {{ .Where }};
		PERFORM set_config('reshape.disable_triggers', '', true);

		RETURN NEW;
	END; $$
`

// CrossTableTrigger binds a CrossTableFunction to FromTable's row events,
// skipping entirely when reshape.disable_triggers is set.
const CrossTableTrigger = `CREATE OR REPLACE TRIGGER {{ .TriggerName | qi }}
	BEFORE INSERT OR UPDATE
	ON {{ .FromTable | qi }}
	FOR EACH ROW
	WHEN (current_setting('reshape.disable_triggers', true) IS DISTINCT FROM 'YES')
	EXECUTE PROCEDURE {{ .FunctionName | qi }}();
`
