package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/collab"
	"github.com/neilberkman/linkscout/internal/core/models"
)

var trendingExplore int

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "List trending articles",
	Long: `List today's trending articles as starting points for an exploration.

Examples:
  linkscout trending
  linkscout trending --explore 1`,
	RunE: runTrending,
}

func init() {
	rootCmd.AddCommand(trendingCmd)
	trendingCmd.Flags().IntVar(&trendingExplore, "explore", 0, "Open article N in the tree view")
	trendingCmd.Flags().StringVar(&articleOpts.endpoint, "endpoint", "", "Exploration process websocket URL (overrides config)")
}

func runTrending(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	trending, err := collab.New(cfg.APIBase).Trending(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load trending articles: %w", err)
	}

	articles := make([]models.ArticleData, len(trending))
	for i, t := range trending {
		articles[i] = t.Article()
	}

	if trendingExplore > 0 {
		article, err := pick(articles, trendingExplore)
		if err != nil {
			return err
		}
		return runTUI(cfg, article)
	}

	if len(articles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No trending articles right now.")
		return nil
	}
	printArticles(cmd.OutOrStdout(), articles)
	return nil
}
