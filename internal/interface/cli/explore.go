package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/config"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/interface/tui"
)

var exploreCmd = &cobra.Command{
	Use:   "explore [title...]",
	Short: "Explore an article in the interactive tree view",
	Long: `Open the live discovery tree for an article.

Press s to start the search once connected, ? for all keys.

Examples:
  linkscout explore Octopus
  linkscout explore --title "Giant Pacific Octopus" --url https://en.wikipedia.org/wiki/Giant_Pacific_octopus
  linkscout explore --article '{"title":"Octopus","source":"wikipedia"}'`,
	RunE: runExplore,
}

func init() {
	rootCmd.AddCommand(exploreCmd)
	addArticleFlags(exploreCmd)
}

func runExplore(cmd *cobra.Command, args []string) error {
	article, err := articleOpts.article(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runTUI(cfg, article)
}

// runTUI owns the terminal until the user quits, so logs go to the log file
func runTUI(cfg *config.Config, article models.ArticleData) error {
	logger, err := openLogger(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	exp := newExploration(cfg, articleOpts.endpoint, article, logger)
	defer exp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = exp.controller.Run(ctx) }()

	p := tea.NewProgram(
		tui.New(exp.controller),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	cancel()
	<-exp.controller.Done()
	return nil
}
