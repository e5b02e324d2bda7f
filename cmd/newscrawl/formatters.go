package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/scraper"
)

// printSummary writes a cycle summary as a table or JSON.
func printSummary(w io.Writer, summary *crawl.Summary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case "table", "":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	fmt.Fprintf(w, "Crawl started %s, took %s\n\n",
		summary.StartedAt.Format("2006-01-02 15:04:05"),
		summary.Duration.Round(time.Millisecond),
	)
	fmt.Fprintf(w, "  Found:      %d\n", summary.TotalFound)
	fmt.Fprintf(w, "  Saved:      %d\n", summary.TotalSaved)
	fmt.Fprintf(w, "  Duplicates: %d\n", summary.Duplicates)
	fmt.Fprintf(w, "  Failed:     %d\n", summary.Failed)

	if len(summary.PerSourceErrors) > 0 {
		fmt.Fprintf(w, "\nSource errors:\n")
		for _, se := range summary.PerSourceErrors {
			fmt.Fprintf(w, "  %s: %s\n", se.Source, se.Error)
		}
	}

	return nil
}

// printSources lists sites with their discovery entry point.
func printSources(w io.Writer, sites []scraper.SiteConfig) {
	if len(sites) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return
	}

	for _, site := range sites {
		status := "enabled"
		if !site.IsEnabled() {
			status = "disabled"
		}
		fmt.Fprintf(w, "%s (%s)\n", site.Name, status)
		fmt.Fprintf(w, "   Base: %s\n", site.BaseURL)
		if site.FeedURL != "" {
			fmt.Fprintf(w, "   Feed: %s\n", site.FeedURL)
		}
		fmt.Fprintln(w)
	}
}
