package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/shopsearch/internal/httpapi"
	"github.com/aman-cerp/shopsearch/internal/output"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the search service",
		Long: `Start the search HTTP service, the baseline refresh scheduler, and the
retention scheduler. Runs until interrupted (SIGINT/SIGTERM), then shuts
down gracefully.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
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

	handler := httpapi.NewHandler(comps.orchestrator, comps.resultCache, comps.log)
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: httpapi.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		out.Successf("listening on %s", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	go func() {
		if err := comps.baselineSched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			comps.log.Error("baseline scheduler stopped", "error", err)
		}
	}()
	go func() {
		if err := comps.retentionSched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			comps.log.Error("retention scheduler stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		out.Status("shutting down")
		comps.baselineSched.Stop()
		comps.retentionSched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	case err := <-serveErr:
		return err
	}
}
