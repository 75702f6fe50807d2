package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/collab"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/render"
)

var (
	searchLimit   int
	searchExplore int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find articles to explore",
	Long: `Search the article backend and list matching articles.

Examples:
  linkscout search octopus
  linkscout search "climate change" --limit 5
  linkscout search octopus --explore 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results (default search_limit)")
	searchCmd.Flags().IntVar(&searchExplore, "explore", 0, "Open result N in the tree view")
	searchCmd.Flags().StringVar(&articleOpts.endpoint, "endpoint", "", "Exploration process websocket URL (overrides config)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	// Join all args as query
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit := searchLimit
	if limit <= 0 {
		limit = cfg.SearchLimit
	}

	results, err := collab.New(cfg.APIBase).Search(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	articles := make([]models.ArticleData, len(results))
	for i, r := range results {
		articles[i] = r.Article()
	}

	if searchExplore > 0 {
		article, err := pick(articles, searchExplore)
		if err != nil {
			return err
		}
		return runTUI(cfg, article)
	}

	if len(articles) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No results for %q\n", query)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Found %d result(s) for %q\n\n", len(articles), query)
	printArticles(cmd.OutOrStdout(), articles)
	return nil
}

// pick returns the 1-based nth article
func pick(articles []models.ArticleData, n int) (models.ArticleData, error) {
	if n < 1 || n > len(articles) {
		return models.ArticleData{}, fmt.Errorf("no result %d (have %d)", n, len(articles))
	}
	return articles[n-1], nil
}

// printArticles lists collaborator results. Everything here came off the
// network, so it is sanitized before it reaches the terminal.
func printArticles(w io.Writer, articles []models.ArticleData) {
	for i, a := range articles {
		fmt.Fprintf(w, "[%d] %s\n", i+1, render.SanitizeLine(a.Title))
		if a.Source != "" {
			fmt.Fprintf(w, "    Source: %s\n", render.SanitizeLine(a.Source))
		}
		if a.URL != "" {
			fmt.Fprintf(w, "    URL: %s\n", render.SanitizeLine(a.URL))
		}
		if a.Snippet != "" {
			snippet := wordwrap.String(truncate(render.SanitizeLine(a.Snippet), 240), 76)
			fmt.Fprintln(w, indent.String(snippet, 4))
		}
		fmt.Fprintln(w)
	}
}

// truncate shortens s to maxLen runes on one line
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
