// SPDX-License-Identifier: Apache-2.0

// Package migration wires the `reshape migration start|status|complete|abort`
// subcommands from spec.md §6.
package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/reshapedb/reshape/cmd/flags"
	"github.com/reshapedb/reshape/pkg/engine"
	"github.com/reshapedb/reshape/pkg/lock"
	"github.com/reshapedb/reshape/pkg/migrations"
	"github.com/reshapedb/reshape/pkg/planfile"
)

// Command returns the `reshape migration` command group.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migration",
		Short: "Manage migration batches",
	}
	cmd.AddCommand(startCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(completeCmd())
	cmd.AddCommand(abortCmd())
	cmd.AddCommand(createCmd())
	return cmd
}

func newEngine(ctx context.Context) (*engine.Engine, func() error, error) {
	l, err := lock.New(ctx, flags.ConnectionString(), flags.LockTimeout())
	if err != nil {
		return nil, nil, err
	}
	return engine.New(l).WithLogger(engine.NewLogger()), l.Close, nil
}

// loadPlan reads the plan file and parses every listed migration.
func loadPlan() ([]*migrations.Migration, error) {
	paths, err := planfile.Read(flags.PlanFile())
	if err != nil {
		return nil, err
	}

	migs := make([]*migrations.Migration, len(paths))
	for i, p := range paths {
		m, err := migrations.ParseFile(p)
		if err != nil {
			return nil, err
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("migration %q: %w", m.Name, err)
		}
		migs[i] = m
	}
	return migs, nil
}

func startCmd() *cobra.Command {
	var all bool
	var number int
	var upTo string
	var complete bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the migrations listed in the plan file",
		RunE: func(cmd *cobra.Command, args []string) error {
			migs, err := loadPlan()
			if err != nil {
				return err
			}

			e, closeFn, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			sp, _ := pterm.DefaultSpinner.WithText("Starting migration...").Start()

			rng := resolveRange(all, number, upTo)
			if err := e.Migrate(cmd.Context(), migs, rng); err != nil {
				sp.Fail(fmt.Sprintf("Failed to start migration: %s", err))
				return err
			}

			if complete {
				sp.UpdateText("Completing migration...")
				if err := e.Complete(cmd.Context()); err != nil {
					sp.Fail(fmt.Sprintf("Failed to complete migration: %s", err))
					return err
				}
				sp.Success("Migration started and completed")
				return nil
			}

			sp.Success("Migration started; apps may now SET search_path to the new schema")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "apply every migration in the plan")
	cmd.Flags().IntVarP(&number, "number", "n", 0, "apply at most N migrations beyond what is already in progress")
	cmd.Flags().StringVar(&upTo, "migration", "", "apply migrations up to and including the named one")
	cmd.Flags().BoolVarP(&complete, "complete", "c", false, "complete the migration immediately after starting it")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the current migration phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeFn, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := e.Status(cmd.Context())
			if err != nil {
				return err
			}

			pterm.DefaultBasicText.Println("phase: " + pterm.Bold.Sprint(st.Phase))
			if len(st.InProgress) > 0 {
				pterm.DefaultBasicText.Printfln("in progress: %v", st.InProgress)
			}
			if st.AppliedMigration != "" {
				pterm.DefaultBasicText.Printfln("last migration: %s", st.AppliedMigration)
			}
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Complete the in-progress migration batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeFn, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			sp, _ := pterm.DefaultSpinner.WithText("Completing migration...").Start()
			if err := e.Complete(cmd.Context()); err != nil {
				sp.Fail(fmt.Sprintf("Failed to complete migration: %s", err))
				return err
			}
			sp.Success("Migration completed")
			return nil
		},
	}
}

func abortCmd() *cobra.Command {
	var all bool
	var number int

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Abort the in-progress migration batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, closeFn, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rng := engine.AllRange()
			if !all && number > 0 {
				rng = engine.NumberRange(number)
			}

			sp, _ := pterm.DefaultSpinner.WithText("Aborting migration...").Start()
			if err := e.Abort(cmd.Context(), rng); err != nil {
				sp.Fail(fmt.Sprintf("Failed to abort migration: %s", err))
				return err
			}
			sp.Success("Migration aborted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "abort every in-progress migration")
	cmd.Flags().IntVarP(&number, "number", "n", 0, "abort only the last N migrations")
	return cmd
}

// createCmd scaffolds an empty migration file ready to have actions added
// by hand. With no --name given, a random, order-independent name is
// generated so ad hoc migrations never collide on disk.
func createCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Scaffold a new, empty migration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = fmt.Sprintf("migration_%s", uuid.NewString())
			}

			path := name + ".json"
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating migration file %q: %w", path, err)
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"description": "", "actions": []any{}}); err != nil {
				return fmt.Errorf("writing migration file %q: %w", path, err)
			}

			pterm.Success.Println("Migration written to " + path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "migration name; random when omitted")
	return cmd
}

func resolveRange(all bool, number int, upTo string) engine.Range {
	switch {
	case upTo != "":
		return engine.UpToRange(upTo)
	case number > 0:
		return engine.NumberRange(number)
	default:
		return engine.AllRange()
	}
}
