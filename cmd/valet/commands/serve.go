package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// newServeCmd creates the `valet serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background assignment worker daemon",
		Long: `Start Valet as a daemon. The daemon processes queued research
assignments, sweeps for work lost to restarts, and records completion
notifications.

Examples:
  valet serve
  valet serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.worker.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	rt.logger.Info("Valet daemon running. Press Ctrl+C to stop.",
		"name", rt.cfg.Name,
		"model", rt.cfg.Model,
		"database", rt.cfg.Database.Path,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	rt.logger.Info("shutdown signal received, stopping...")
	cancel()

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		rt.worker.Wait()
		close(done)
	}()

	select {
	case <-done:
		rt.logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		rt.logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}
