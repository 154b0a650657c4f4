// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reshapedb/reshape/cmd/flags"
	"github.com/reshapedb/reshape/cmd/migration"
)

// Version is the reshape version, overridden at build time via ldflags.
var Version = "development"

func init() {
	viper.SetEnvPrefix("DB")
	viper.AutomaticEnv()

	flags.RegisterConnectionFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "reshape",
	Short:        "Zero-downtime PostgreSQL schema migrations",
	SilenceUsage: true,
	Version:      Version,
}

// Execute runs the root command.
func Execute() error {
	rootCmd.AddCommand(migration.Command())
	rootCmd.AddCommand(schemaQueryCmd())
	return rootCmd.Execute()
}
