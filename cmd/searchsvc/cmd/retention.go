package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/shopsearch/internal/output"
)

func newRetentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Manage data retention",
	}
	cmd.AddCommand(newRetentionRunCmd())
	return cmd
}

func newRetentionRunCmd() *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every retention policy once",
		Long: `Runs the full retention policy table (analytics events, popular-query
rollups, daily performance rollups, non-latest baselines, stale learned
patterns) once, outside its normal scheduled cadence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionRun(cmd, now)
		},
	}
	cmd.Flags().StringVar(&now, "as-of", "", "run as of this RFC3339 timestamp instead of the current time")
	return cmd
}

func runRetentionRun(cmd *cobra.Command, asOf string) error {
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

	runAt := time.Now()
	if asOf != "" {
		runAt, err = time.Parse(time.RFC3339, asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of timestamp: %w", err)
		}
	}

	results := comps.retentionMgr.RunAll(cmd.Context(), runAt)

	rows := make([][2]string, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			rows = append(rows, [2]string{r.Policy, "failed: " + r.Err.Error()})
			continue
		}
		rows = append(rows, [2]string{r.Policy, fmt.Sprintf("deleted %d rows before %s", r.DeletedCount, r.CutoffAt.Format(time.RFC3339))})
	}
	out.Table(rows)

	if failed > 0 {
		return fmt.Errorf("%d of %d retention policies failed", failed, len(results))
	}
	out.Success("retention run complete")
	return nil
}
