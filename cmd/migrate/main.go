// migrate applies the embedded auth schema migrations.
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate down
//	go run ./cmd/migrate status
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"election-voting/auth/internal/config"
	"election-voting/auth/internal/db/migrate"
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply or inspect the auth database schema",
	SilenceUsage: true,
}

func directionCmd(d migrate.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(d),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := migrate.Run(cfg.DatabaseURL, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", d)
			return nil
		},
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		version, dirty, err := migrate.Status(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(
		directionCmd(migrate.Up, "Apply all pending migrations"),
		directionCmd(migrate.Down, "Roll back all migrations"),
		statusCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
