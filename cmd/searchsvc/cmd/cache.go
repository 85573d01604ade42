package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/shopsearch/internal/output"
)

const cacheStatsTimeout = 5 * time.Second

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the result cache of a running service",
	}
	cmd.AddCommand(newCacheStatsCmd())
	return cmd
}

type cacheStats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Stampedes  int64 `json:"stampedes"`
	EntryCount int   `json:"entry_count"`
}

func newCacheStatsCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss/eviction counters for a running service",
		Long: `Queries a running searchsvc instance's /internal/cache/stats endpoint.
Defaults to the listen address from the loaded configuration; pass
--addr to target a different instance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "base address of a running instance, e.g. http://localhost:8080")
	return cmd
}

func runCacheStats(cmd *cobra.Command, addr string) error {
	out := output.New(cmd.OutOrStdout())

	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		addr = "http://localhost" + cfg.Server.ListenAddr
	}

	client := &http.Client{Timeout: cacheStatsTimeout}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, addr+"/internal/cache/stats", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, addr)
	}

	var stats cacheStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out.Table([][2]string{
		{"hits", fmt.Sprintf("%d", stats.Hits)},
		{"misses", fmt.Sprintf("%d", stats.Misses)},
		{"evictions", fmt.Sprintf("%d", stats.Evictions)},
		{"stampedes", fmt.Sprintf("%d", stats.Stampedes)},
		{"entry_count", fmt.Sprintf("%d", stats.EntryCount)},
	})
	return nil
}
