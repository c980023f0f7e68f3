package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"realtime_dashboard/core"
	"realtime_dashboard/db"
)

// NewMigrateCmd creates the `migrate` command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema",
	}

	sqlitePath := func(cmd *cobra.Command) (string, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return "", err
		}
		if cfg.StoreBackend != core.StoreBackendSQLite {
			return "", core.ErrInvalidValue("STORE_BACKEND", cfg.StoreBackend, "migrations only apply to sqlite")
		}
		return cfg.DatabasePath, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := sqlitePath(cmd)
				if err != nil {
					return err
				}
				if err := db.MigrateUpFromPath(path); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default: 1 step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				path, err := sqlitePath(cmd)
				if err != nil {
					return err
				}
				if err := db.MigrateDownFromPath(path, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", steps)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := sqlitePath(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := db.MigrationVersionFromPath(path)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if dirty {
					fmt.Fprintf(out, "%d (dirty)\n", version)
				} else {
					fmt.Fprintln(out, version)
				}
				return nil
			},
		},
	)
	return cmd
}
