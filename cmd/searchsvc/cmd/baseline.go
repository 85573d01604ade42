package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/shopsearch/internal/output"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage performance baselines",
	}
	cmd.AddCommand(newBaselineRefreshCmd())
	return cmd
}

func newBaselineRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Compute baselines and mine learned patterns for every store",
		Long: `Runs the baseline job once, outside its normal scheduled cadence, for
every store scope with recorded analytics history. Skips rather than
running if another process already holds the baseline lock.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBaselineRefresh(cmd)
		},
	}
}

func runBaselineRefresh(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	comps, err := buildComponents(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to wire components: %w", err)
	}
	defer comps.Close()

	ran, err := comps.baselineSched.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("baseline refresh failed: %w", err)
	}
	if !ran {
		out.Warning("baseline refresh skipped: lock held by another process")
		return nil
	}

	out.Success("baseline refresh complete")
	return nil
}
