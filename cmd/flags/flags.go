// SPDX-License-Identifier: Apache-2.0

// Package flags centralises the connection flags shared by every
// subcommand and their DB_*-prefixed environment equivalents, which take
// precedence over the CLI flag per spec.
package flags

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Host() string         { return viper.GetString("HOST") }
func Port() int            { return viper.GetInt("PORT") }
func Database() string     { return viper.GetString("DATABASE") }
func Username() string     { return viper.GetString("USERNAME") }
func Password() string     { return viper.GetString("PASSWORD") }
func URL() string          { return viper.GetString("URL") }
func LockTimeout() string  { return viper.GetString("LOCK_TIMEOUT") }
func PlanFile() string     { return viper.GetString("PLAN") }

// ConnectionString builds a libpq URL from --url if set, or else from the
// individual host/port/database/username/password flags.
func ConnectionString() string {
	if u := URL(); u != "" {
		return u
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		Username(), Password(), Host(), Port(), Database())
}

// RegisterConnectionFlags adds the connection flags from spec.md §6 to cmd
// and binds each to its DB_*-prefixed environment variable. A set variable
// takes precedence over its flag, including a flag given explicitly on the
// command line: cmd's PersistentPreRun copies it in with viper.Set, which
// outranks a bound flag.
func RegisterConnectionFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("url", "", "full Postgres connection URL (overrides the individual connection flags)")
	cmd.PersistentFlags().String("host", "localhost", "Postgres host")
	cmd.PersistentFlags().Int("port", 5432, "Postgres port")
	cmd.PersistentFlags().String("database", "", "Postgres database name")
	cmd.PersistentFlags().String("username", "postgres", "Postgres username")
	cmd.PersistentFlags().String("password", "", "Postgres password")
	cmd.PersistentFlags().String("lock-timeout", "1s", "lock_timeout applied to the engine's session")
	cmd.PersistentFlags().String("plan", "migrations.plan", "plan file listing migration file paths, one per line")

	viper.BindPFlag("URL", cmd.PersistentFlags().Lookup("url"))
	viper.BindPFlag("HOST", cmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("PORT", cmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("DATABASE", cmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("USERNAME", cmd.PersistentFlags().Lookup("username"))
	viper.BindPFlag("PASSWORD", cmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("LOCK_TIMEOUT", cmd.PersistentFlags().Lookup("lock-timeout"))
	viper.BindPFlag("PLAN", cmd.PersistentFlags().Lookup("plan"))

	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		for _, key := range []string{"URL", "HOST", "PORT", "DATABASE", "USERNAME", "PASSWORD", "LOCK_TIMEOUT", "PLAN"} {
			if v, ok := os.LookupEnv("DB_" + key); ok {
				viper.Set(key, v)
			}
		}
	}
}
