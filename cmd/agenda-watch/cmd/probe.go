package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/internal/probe"
)

var (
	probeSource string
	probeURL    string
	probeFormat string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Survey a source's site to tune allow and block lists",
	Long: `Crawl a source's site breadth-first from its landing page, staying on the
same host, and rank every link found with the source's scoring rules.

Use the output to choose allowlist and blocklist patterns before adding a
source.

Examples:
  agenda-watch probe --source city-council
  agenda-watch probe --url https://example.gov/meetings --format json`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&probeSource, "source", "", "Source ID from config")
	probeCmd.Flags().StringVar(&probeURL, "url", "", "Landing URL to survey directly")
	probeCmd.Flags().StringVar(&probeFormat, "format", "text", "Output format: text or json")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	src, err := sourceFromFlags(probeSource, probeURL, "")
	if err != nil {
		return err
	}

	p := probe.New(probe.Config{
		Delay:     cfg.Probe.Delay,
		MaxDepth:  cfg.Probe.MaxDepth,
		MaxPages:  cfg.Probe.MaxPages,
		UserAgent: cfg.Fetcher.UserAgent,
		Timeout:   cfg.Fetcher.Timeout,
	})
	report, err := p.Survey(ctx, src)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	w := cmd.OutOrStdout()
	if probeFormat == "json" {
		return printJSON(w, report)
	}

	fmt.Fprintf(w, "Surveyed %d pages from %s in %v", len(report.Pages), report.LandingURL, report.Duration)
	if report.Truncated {
		fmt.Fprint(w, " (page limit reached)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nPages:")
	for _, page := range report.Pages {
		fmt.Fprintf(w, "  [%d] %3d %s (%d links)\n", page.Depth, page.StatusCode, page.URL, page.Links)
	}
	if len(report.Documents) > 0 {
		fmt.Fprintln(w, "\nDocuments:")
		for _, doc := range report.Documents {
			fmt.Fprintf(w, "  %s\n", doc)
		}
	}
	fmt.Fprintln(w, "\nTop candidates:")
	for _, c := range report.Candidates {
		fmt.Fprintf(w, "  %4d  %s  %q\n", c.Score, c.URL, c.AnchorText)
	}
	return nil
}
