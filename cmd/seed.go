package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"realtime_dashboard/dashboard"
)

// NewSeedCmd creates the `seed` command.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the default snapshot of every category",
		Long: `Write the default snapshot of every category whose key is missing, and
set the last-updated timestamp. With --overwrite every category is reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			overwrite, _ := cmd.Flags().GetBool("overwrite")
			repo := dashboard.NewRepository(store, logger.Named("repository"))
			seeded, err := repo.SeedDefaults(cmd.Context(), overwrite)
			if err != nil {
				return fmt.Errorf("failed to seed defaults: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(seeded) == 0 {
				color.New(color.FgHiBlack).Fprintln(out, "All categories already have data; nothing to do.")
				return nil
			}
			green := color.New(color.FgGreen)
			for _, c := range seeded {
				green.Fprint(out, "✓ ")
				fmt.Fprintf(out, "%s (%s)\n", c, c.Key())
			}
			return nil
		},
	}
	cmd.Flags().Bool("overwrite", false, "Reset categories that already have data")
	return cmd
}
