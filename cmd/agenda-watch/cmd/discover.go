package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

var (
	discoverSource string
	discoverURL    string
	discoverMode   string
	discoverFormat string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Show how the agenda of one source is found",
	Long: `Walk one source from its landing page and print every step: the links
found, their scores, the link followed and why pages were rejected.

Nothing is compared or stored besides the fetch cache.

Examples:
  # Trace a configured source
  agenda-watch discover --source city-council

  # Trace an arbitrary landing page
  agenda-watch discover --url https://example.gov/meetings --mode meeting-list`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverSource, "source", "", "Source ID from config")
	discoverCmd.Flags().StringVar(&discoverURL, "url", "", "Landing URL to walk directly")
	discoverCmd.Flags().StringVar(&discoverMode, "mode", string(models.ModeStandard), "Mode for --url: standard, meeting-list or api-first")
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "text", "Output format: text or json")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	src, err := sourceFromFlags(discoverSource, discoverURL, discoverMode)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.discovery.Discover(ctx, src)
	if discoverFormat == "json" {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printDiscovery(cmd.OutOrStdout(), res)
	if !res.Status.Success() {
		return fmt.Errorf("discovery ended with %s", res.Status)
	}
	return nil
}

// sourceFromFlags resolves --source against the config or builds an ad hoc
// source for --url.
func sourceFromFlags(id, landingURL, mode string) (models.Source, error) {
	switch {
	case id != "" && landingURL != "":
		return models.Source{}, errors.New("--source and --url are mutually exclusive")
	case id != "":
		cfg := GetConfig()
		src, ok := cfg.SourceByID(id)
		if !ok {
			return models.Source{}, fmt.Errorf("source %q not found in config", id)
		}
		return src, nil
	case landingURL != "":
		return models.Source{ID: "adhoc", LandingURL: landingURL, Mode: models.Mode(mode)}, nil
	default:
		return models.Source{}, errors.New("one of --source or --url is required")
	}
}

func printDiscovery(w io.Writer, res *models.DiscoveryResult) {
	fmt.Fprintf(w, "Source:  %s\n", res.SourceID)
	fmt.Fprintf(w, "Landing: %s\n\n", res.LandingURL)
	for _, step := range res.Path {
		fmt.Fprintf(w, "[%d] %s (%s", step.Depth, step.URL, step.Kind)
		if step.DocType != "" {
			fmt.Fprintf(w, ", %s", step.DocType)
		}
		fmt.Fprintln(w, ")")
		if step.LinksFound > 0 {
			fmt.Fprintf(w, "    %d links, top:\n", step.LinksFound)
			for _, l := range step.TopLinks {
				fmt.Fprintf(w, "      %4d  %s  %q\n", l.Score, l.URL, l.AnchorText)
			}
		}
		if step.Selected != "" {
			fmt.Fprintf(w, "    -> %s\n", step.Selected)
		}
		if step.Rejected != "" {
			fmt.Fprintf(w, "    rejected: %s\n", step.Rejected)
		}
		if step.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", step.Error)
		}
	}
	fmt.Fprintf(w, "\nStatus: %s", res.Status)
	if res.FinalURL != "" {
		fmt.Fprintf(w, "  %s", res.FinalURL)
	}
	fmt.Fprintln(w)
	if res.Error != "" {
		fmt.Fprintf(w, "Error:  %s\n", res.Error)
	}
	if doc := res.Document; doc != nil && doc.Facts != nil {
		f := doc.Facts
		fmt.Fprintf(w, "Meeting: %s %s %s %s (%d items)\n", f.Committee, f.MeetingDate, f.MeetingTime, f.Location, len(f.Items))
	}
}
