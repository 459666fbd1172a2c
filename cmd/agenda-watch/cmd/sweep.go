package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stale fetch cache entries",
	Long: `Delete cached responses older than --max-age. Baselines, item sets and
archived documents are kept.

Example:
  agenda-watch sweep --max-age 72h`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0, "Maximum entry age (default fetcher.cache_retention)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	maxAge := cfg.Fetcher.CacheRetention
	if sweepMaxAge > 0 {
		maxAge = sweepMaxAge
	}
	if maxAge <= 0 {
		return fmt.Errorf("max age must be positive, got %v", maxAge)
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.fetcher.SweepCache(ctx, maxAge)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cache entries older than %v\n", n, maxAge)
	return nil
}
