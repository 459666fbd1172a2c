package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/internal/events"
)

var (
	watchSchedule    string
	watchMetricsAddr string
	watchRunNow      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check sources on a schedule",
	Long: `Run check cycles on a cron schedule until interrupted, serving Prometheus
metrics on /metrics meanwhile.

A cycle that is still running when the next one is due is skipped.

Examples:
  # Use monitor.schedule from config
  agenda-watch watch

  # Every ten minutes, first cycle right away
  agenda-watch watch --schedule "*/10 * * * *" --now`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Cron schedule (default monitor.schedule)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Metrics listen address (default metrics.addr, \"off\" to disable)")
	watchCmd.Flags().BoolVar(&watchRunNow, "now", false, "Run a cycle immediately before waiting for the schedule")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	schedule := cfg.Monitor.Schedule
	if watchSchedule != "" {
		schedule = watchSchedule
	}
	metricsAddr := cfg.Metrics.Addr
	if watchMetricsAddr != "" {
		metricsAddr = watchMetricsAddr
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	// Events are delivered asynchronously; Close drains the queue.
	dispatcher := events.NewDispatcher(a.sink(), 64)
	mon := a.monitor(dispatcher)

	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(schedule, func() {
		mon.RunCycle(ctx, cfg.Sources)
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	var srv *http.Server
	if metricsAddr != "" && metricsAddr != "off" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d sources on %q\n", len(cfg.Sources), schedule)
	if watchRunNow {
		mon.RunCycle(ctx, cfg.Sources)
	}
	c.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	// Wait for a running cycle; it sees the cancelled context and winds down.
	<-c.Stop().Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}

	delivered, failed := dispatcher.Close()
	fmt.Fprintf(cmd.ErrOrStderr(), "Stopped: %d events delivered, %d failed\n", delivered, failed)
	return nil
}
