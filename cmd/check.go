package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"realtime_dashboard/core"
	"realtime_dashboard/core/validation"
	"realtime_dashboard/db"
)

// NewCheckCmd creates the `check` command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configuration, store and a running server",
		Long: `Run pre-flight checks: the .env file, the configuration, free disk space
and schema of the SQLite store, and optionally the /health endpoint of a
running server. Nothing is written to the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			serverURL, _ := cmd.Flags().GetString("url")
			failFast, _ := cmd.Flags().GetBool("fail-fast")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			result := newCheckSuite(cmd, envFile, serverURL).
				WithOutput(cmd.OutOrStdout()).
				WithFailFast(failFast).
				WithTimeout(timeout).
				Run(cmd.Context())
			if !result.Success {
				if err := result.FirstError(); err != nil {
					return fmt.Errorf("%s: %w", result.Summary(), err)
				}
				return errors.New(result.Summary())
			}
			return nil
		},
	}
	cmd.Flags().String("url", "", "Also check the /health endpoint of the server at this base URL")
	cmd.Flags().Bool("fail-fast", false, "Stop at the first failed check")
	cmd.Flags().Duration("timeout", 10*time.Second, "Timeout for each check")
	return cmd
}

func newCheckSuite(cmd *cobra.Command, envFile, serverURL string) *validation.Suite {
	var cfg *core.Config
	sqlite := func() bool { return cfg != nil && cfg.StoreBackend == core.StoreBackendSQLite }

	suite := validation.NewSuite("Dashboard Pre-flight Checks").Add(
		validation.Check{
			Name: "Environment File",
			Run: func(context.Context) validation.Result {
				return validation.CheckEnvFile(envFile)
			},
		},
		validation.Check{
			Name: "Configuration",
			Run: func(context.Context) validation.Result {
				var err error
				if cfg, err = loadConfig(cmd); err != nil {
					return validation.Fail(err, "Invalid configuration")
				}
				return validation.Pass("%s store, listening on %s", cfg.StoreBackend, cfg.Addr())
			},
		},
		validation.Check{
			Name:            "Database Disk Space",
			RequiresPassing: true,
			Run: func(context.Context) validation.Result {
				if !sqlite() {
					return validation.Skip("Not using the sqlite backend")
				}
				return validation.CheckFreeSpace(filepath.Dir(cfg.DatabasePath), validation.MinDatabaseFreeBytes)
			},
		},
		validation.Check{
			Name:            "Store Connectivity",
			RequiresPassing: true,
			Run: func(ctx context.Context) validation.Result {
				if !sqlite() {
					return validation.Skip("In-memory store, nothing to connect to")
				}
				if _, err := os.Stat(cfg.DatabasePath); errors.Is(err, fs.ErrNotExist) {
					return validation.Warn("%s does not exist yet, it is created on first start", cfg.DatabasePath)
				}
				conn, err := db.NewSQLiteConnectionWithDefaults(cfg.DatabasePath)
				if err != nil {
					return validation.Fail(err, "Cannot open %s", cfg.DatabasePath)
				}
				store := db.NewSQLiteStore(conn, cfg.DatabasePath)
				defer store.Close()
				return validation.CheckPing(ctx, store)
			},
		},
		validation.Check{
			Name:            "Database Schema",
			RequiresPassing: true,
			Run: func(context.Context) validation.Result {
				if !sqlite() {
					return validation.Skip("Not using the sqlite backend")
				}
				if _, err := os.Stat(cfg.DatabasePath); errors.Is(err, fs.ErrNotExist) {
					return validation.Skip("No database yet")
				}
				return validation.CheckSchema(func() (uint, bool, error) {
					return db.MigrationVersionFromPath(cfg.DatabasePath)
				})
			},
		},
	)

	if serverURL != "" {
		suite.Add(validation.Check{
			Name: "Server Health",
			Run: func(ctx context.Context) validation.Result {
				return validation.CheckServerHealth(ctx, &http.Client{}, serverURL)
			},
		})
	}
	return suite
}
