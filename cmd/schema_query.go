// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reshapedb/reshape/cmd/flags"
	"github.com/reshapedb/reshape/pkg/migrations"
	"github.com/reshapedb/reshape/pkg/planfile"
	"github.com/reshapedb/reshape/pkg/schema"
)

// schemaQueryCmd emits the `SET search_path` statement applications should
// run to attach to the schema of the last migration in the plan file.
func schemaQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema-query",
		Short: `Print "SET search_path TO migration_<last>" for the plan file's last migration`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := planfile.Read(flags.PlanFile())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("plan file %q lists no migrations", flags.PlanFile())
			}

			last, err := migrations.ParseFile(paths[len(paths)-1])
			if err != nil {
				return err
			}
			fmt.Printf("SET search_path TO %s\n", schema.QuoteIdentifier(schema.MigrationSchemaName(last.Name)))
			return nil
		},
	}
}
