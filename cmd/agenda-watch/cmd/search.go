package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/agenda-watch/internal/elasticsearch"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

var (
	searchLimit  int
	searchSource string
	searchType   string
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search detected changes",
	Long: `Search change events stored in Elasticsearch. An empty query lists the
most recent events.

Examples:
  # Full-text search
  agenda-watch search "zoning variance"

  # Latest new items for one source
  agenda-watch search "" --source city-council --type new_item

  # JSON output for scripting
  agenda-watch search "budget" --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "Only events of this source ID")
	searchCmd.Flags().StringVar(&searchType, "type", "", "Only events of this change type")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var query string
	if len(args) > 0 {
		query = args[0]
	}
	cfg := GetConfig()

	esClient, err := newSearchClient(cfg.Elasticsearch)
	if err != nil {
		return err
	}

	found, err := esClient.Search(ctx, query, elasticsearch.Filter{
		SourceID:   searchSource,
		ChangeType: models.ChangeType(searchType),
	}, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	w := cmd.OutOrStdout()
	if searchFormat == "json" {
		return printJSON(w, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(found))
	for i, ev := range found {
		fmt.Fprintf(w, "─── Result %d ───\n", i+1)
		fmt.Fprintf(w, "Type:     %s\n", ev.ChangeType)
		fmt.Fprintf(w, "Source:   %s\n", ev.SourceID)
		fmt.Fprintf(w, "Title:    %s\n", ev.Title)
		if ev.MeetingDateTime != "" {
			fmt.Fprintf(w, "Meeting:  %s\n", ev.MeetingDateTime)
		}
		fmt.Fprintf(w, "URL:      %s\n", ev.SourceURL)
		fmt.Fprintf(w, "Detected: %s\n", ev.DetectedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "ID:       %s\n\n", ev.EventID)
	}
	return nil
}
