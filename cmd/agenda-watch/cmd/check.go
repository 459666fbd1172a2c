package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/internal/monitor"
)

var (
	checkSource      string
	checkBypassCache bool
	checkFormat      string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check sources once and report changes",
	Long: `Run one check cycle: locate each source's current agenda, compare it with
the stored baseline and publish change events.

The command exits non-zero when any source could not be checked.

Examples:
  # Check every configured source
  agenda-watch check

  # Check one source, ignoring cached responses
  agenda-watch check --source city-council --bypass-cache

  # JSON report for scripting
  agenda-watch check --format json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkSource, "source", "", "Source ID from config to check")
	checkCmd.Flags().BoolVar(&checkBypassCache, "bypass-cache", false, "Always fetch from the network")
	checkCmd.Flags().StringVar(&checkFormat, "format", "text", "Output format: text or json")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	sources, err := selectSources(cfg, checkSource)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{bypassCache: checkBypassCache})
	if err != nil {
		return err
	}
	defer a.Close()

	cycle := a.monitor(a.sink()).RunCycle(ctx, sources)

	if checkFormat == "json" {
		if err := printJSON(cmd.OutOrStdout(), cycle); err != nil {
			return err
		}
	} else {
		printCycle(cmd.OutOrStdout(), cycle)
	}

	if cycle.Failed > 0 {
		return fmt.Errorf("%d of %d sources failed", cycle.Failed, cycle.Checked)
	}
	return nil
}

func printCycle(w io.Writer, cycle *monitor.CycleReport) {
	for _, r := range cycle.Reports {
		status := "unknown"
		if r.Discovery != nil {
			status = string(r.Discovery.Status)
		}
		fmt.Fprintf(w, "%-24s %-20s", r.SourceID, status)
		switch {
		case r.Error != "":
			fmt.Fprintf(w, " error: %s", r.Error)
		case r.Summary != nil && r.Summary.Baseline:
			fmt.Fprint(w, " baseline stored")
		case r.Changed():
			fmt.Fprintf(w, " changed (%.1f%%, +%d/-%d lines)",
				r.Summary.PercentChanged, len(r.Summary.AddedLines), len(r.Summary.RemovedLines))
		case r.Summary != nil && r.Summary.NoiseOnly:
			fmt.Fprint(w, " noise only")
		case r.Summary != nil:
			fmt.Fprint(w, " unchanged")
		}
		fmt.Fprintln(w)
		if r.Discovery != nil && r.Discovery.FinalURL != "" {
			fmt.Fprintf(w, "  agenda: %s\n", r.Discovery.FinalURL)
		}
		for _, ev := range r.Events {
			fmt.Fprintf(w, "  %-22s %s\n", ev.ChangeType, ev.Title)
		}
	}
	fmt.Fprintf(w, "\nChecked %d sources: %d ok, %d failed, %d changed in %v\n",
		cycle.Checked, cycle.Succeeded, cycle.Failed, cycle.Changed, cycle.Duration.Round(time.Millisecond))
}
