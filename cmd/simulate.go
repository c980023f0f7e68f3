package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"realtime_dashboard/dashboard"
)

// NewSimulateCmd creates the `simulate` command.
func NewSimulateCmd() *cobra.Command {
	names := make([]string, 0, len(dashboard.Categories()))
	for _, c := range dashboard.Categories() {
		names = append(names, c.String())
	}

	cmd := &cobra.Command{
		Use:       "simulate <category>",
		Short:     "Apply one simulated update to a category",
		Long:      "Apply one simulated update directly to the store. Categories: " + strings.Join(names, ", ") + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := dashboard.ParseCategory(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			repo := dashboard.NewRepository(store, logger.Named("repository"))
			writer := dashboard.NewWriter(repo, logger.Named("writer"))
			snapshot, err := writer.Simulate(cmd.Context(), category)
			if err != nil {
				return fmt.Errorf("failed to simulate update: %w", err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen, color.Bold).Fprintln(out, dashboard.UpdateMessage(category))
			if show, _ := cmd.Flags().GetBool("show"); show {
				data, err := json.MarshalIndent(snapshot, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			}
			return nil
		},
	}
	cmd.Flags().Bool("show", false, "Print the new snapshot")
	return cmd
}
