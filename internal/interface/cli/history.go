package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/db"
	"github.com/neilberkman/linkscout/internal/core/render"
	"github.com/neilberkman/linkscout/internal/core/search"
)

var (
	historyLimit  int
	historySince  string
	historyBefore string
	historyStats  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [query]",
	Short: "List past explorations",
	Long: `List recorded explorations, newest first.

The query matches titles and accepts after:, before:, and limit: filters.
Dates can be ISO (2026-03-01) or natural language (yesterday, last-week,
"3 days ago").

Examples:
  linkscout history
  linkscout history octopus --since yesterday
  linkscout history after:last-week limit:5
  linkscout history --stats`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of explorations to display")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only explorations started after this date")
	historyCmd.Flags().StringVar(&historyBefore, "before", "", "Only explorations started before this date")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show totals instead of the list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = database.Close()
	}()

	out := cmd.OutOrStdout()
	if historyStats {
		return printStats(out, database)
	}

	filter, err := historyFilter(strings.Join(args, " "), time.Now())
	if err != nil {
		return err
	}

	runs, err := database.ListExplorations(filter)
	if err != nil {
		return fmt.Errorf("failed to list explorations: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No explorations found. Run 'linkscout explore <title>' to start one.")
		return nil
	}

	fmt.Fprintf(out, "Showing %d exploration(s)\n\n", len(runs))
	for i, e := range runs {
		fmt.Fprintf(out, "[%d] %s\n", i+1, render.SanitizeLine(e.Title))
		if e.URL != "" {
			fmt.Fprintf(out, "    URL: %s\n", render.SanitizeLine(e.URL))
		}
		fmt.Fprintf(out, "    Started: %s\n", formatTimestamp(e.StartedAt))
		if e.Finished() {
			fmt.Fprintf(out, "    Nodes: %d (%d completed, %d errors, %d rate limited)\n",
				e.TotalNodes, e.CompletedNodes, e.ErrorNodes, e.RateLimitedNodes)
			fmt.Fprintf(out, "    Took: %s\n", e.FinishedAt.Sub(e.StartedAt).Round(time.Second))
		} else {
			fmt.Fprintln(out, "    Unfinished")
		}
		if e.HasAnalysis {
			fmt.Fprintln(out, "    Analysis: yes")
		}
		fmt.Fprintf(out, "    ID: %s\n\n", e.ID)
	}
	return nil
}

// historyFilter merges the query with --since/--before/--limit
func historyFilter(query string, now time.Time) (db.ExplorationFilter, error) {
	filter, err := search.ParseQuery(query, now)
	if err != nil {
		return filter, err
	}
	if historySince != "" {
		if filter.After, err = search.ParseDate(historySince, now); err != nil {
			return filter, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if historyBefore != "" {
		if filter.Before, err = search.ParseDate(historyBefore, now); err != nil {
			return filter, fmt.Errorf("invalid --before: %w", err)
		}
	}
	if filter.Limit == 0 {
		filter.Limit = historyLimit
	}
	return filter, nil
}

func printStats(w io.Writer, database *db.DB) error {
	stats, err := database.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Fprintln(w, "Exploration History")
	fmt.Fprintln(w, "===================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Explorations:      %s (%s finished)\n",
		humanize.Comma(int64(stats.TotalExplorations)), humanize.Comma(int64(stats.FinishedExplorations)))
	fmt.Fprintf(w, "Websites found:    %s\n", humanize.Comma(int64(stats.TotalNodes)))
	fmt.Fprintf(w, "Failed nodes:      %d\n", stats.ErrorNodes)
	fmt.Fprintf(w, "Rate limited:      %d\n", stats.RateLimitedNodes)
	fmt.Fprintf(w, "With analysis:     %d\n", stats.WithAnalysis)

	if stats.TotalExplorations > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Oldest:            %s\n", formatTimestamp(stats.Oldest))
		fmt.Fprintf(w, "Newest:            %s\n", formatTimestamp(stats.Newest))
		fmt.Fprintf(w, "Most explored:     %s (%d times)\n", render.SanitizeLine(stats.MostExplored), stats.MostExploredCount)
	}
	return nil
}

// formatTimestamp shows recent times relatively and older ones as dates
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	if time.Since(t) < 7*24*time.Hour {
		return humanize.Time(t)
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}
