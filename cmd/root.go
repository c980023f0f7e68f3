// Package cmd holds the dashboard command-line interface.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"realtime_dashboard/core"
	"realtime_dashboard/logging"
)

// NewRootCmd creates the `dashboard` command. Without a subcommand it
// serves, like `dashboard serve`.
func NewRootCmd() *cobra.Command {
	serve := NewServeCmd()

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Real-time dashboard metrics server",
		Long: `dashboard serves dashboard metrics from a key-value store and pushes
changes to connected clients over server-sent events or WebSocket.

Configuration is read from the environment, optionally loaded from a .env file.`,
		Version:       core.VersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().String("env-file", ".env", "Path to a .env file to load")

	cmd.AddCommand(
		serve,
		NewSeedCmd(),
		NewSimulateCmd(),
		NewWatchCmd(),
		NewMigrateCmd(),
		NewServiceCmd(),
		NewCheckCmd(),
	)
	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return core.ExitCodeForError(err)
}

// loadConfig loads the .env file named by --env-file, if present, and then
// the configuration from the environment.
func loadConfig(cmd *cobra.Command) (*core.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return core.LoadConfig()
}

// newLogger builds the service logger from cfg. Console output goes to
// stderr so command output on stdout stays clean.
func newLogger(cfg *core.Config) *zap.Logger {
	lc := logging.DefaultConfig(cfg.LogFile)
	lc.Level = logging.ParseLogLevel(cfg.LogLevel, zapcore.InfoLevel)
	lc.Development = cfg.DevMode
	lc.Console = zapcore.Lock(os.Stderr)
	return logging.NewLogger(lc)
}

// setup is loadConfig followed by newLogger.
func setup(cmd *cobra.Command) (*core.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}
