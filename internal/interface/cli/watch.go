package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/render"
	"github.com/neilberkman/linkscout/internal/core/session"
)

var (
	watchFollow  bool
	watchHTML    string
	watchLinger  time.Duration
	watchTimeout time.Duration
	watchWidth   int
)

var watchCmd = &cobra.Command{
	Use:   "watch [title...]",
	Short: "Run an exploration headless and print the tree",
	Long: `Start an exploration without the interactive view and print the
discovery tree when it completes.

Examples:
  linkscout watch Octopus
  linkscout watch --follow --title "Climate change"
  linkscout watch Octopus --linger --html octopus.html`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addArticleFlags(watchCmd)
	watchCmd.Flags().BoolVarP(&watchFollow, "follow", "f", false, "Print the tree after every update")
	watchCmd.Flags().StringVar(&watchHTML, "html", "", "Also write an HTML report to this file")
	watchCmd.Flags().DurationVar(&watchLinger, "linger", 0, "Wait this long for the final analysis after the tree completes")
	watchCmd.Flags().Lookup("linger").NoOptDefVal = "30s"
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 10*time.Minute, "Give up after this long (0 for no limit)")
	watchCmd.Flags().IntVar(&watchWidth, "width", 0, "Truncate lines to this width (0 for no limit)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	article, err := articleOpts.article(args)
	if err != nil {
		return err
	}
	if article.Title == "" {
		return errNoTitle
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := openLogger(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	exp := newExploration(cfg, articleOpts.endpoint, article, logger)
	defer exp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if watchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchTimeout)
		defer cancel()
	}

	out := cmd.OutOrStdout()
	opts := session.WatchOptions{Linger: watchLinger}
	var spin *Spinner

	if watchFollow {
		var lastText, lastStatus string
		opts.OnView = func(v session.View) {
			text := v.Text(watchWidth)
			if text == lastText && v.Status == lastStatus {
				return
			}
			lastText, lastStatus = text, v.Status
			fmt.Fprintf(out, "── %s\n%s\n", render.SanitizeLine(v.Status), text)
		}
	} else {
		spin = NewSpinner(cmd.ErrOrStderr(), "Connecting to server...")
		spin.Start()
		defer spin.Stop()
		opts.OnView = func(v session.View) {
			msg := render.SanitizeLine(v.Status)
			if v.Countdown != "" {
				msg = v.Countdown
			}
			if v.Tree.Count > 0 {
				msg = fmt.Sprintf("%s (%d nodes)", msg, v.Tree.Count)
			}
			spin.SetMessage(msg)
		}
	}

	v, watchErr := session.Watch(ctx, exp.controller, opts)

	if spin != nil {
		spin.Stop()
	}
	if !watchFollow || watchErr != nil {
		fmt.Fprint(out, v.Text(watchWidth))
	}
	printSummary(out, v)

	if watchHTML != "" && !v.Tree.IsPlaceholder() {
		if err := writeReport(watchHTML, v.Tree); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", watchHTML)
	}

	switch {
	case watchErr == nil:
		return nil
	case errors.Is(watchErr, context.DeadlineExceeded):
		return fmt.Errorf("exploration did not finish within %s", watchTimeout)
	default:
		return fmt.Errorf("exploration failed: %w", watchErr)
	}
}

func printSummary(w io.Writer, v session.View) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status:  %s\n", render.SanitizeLine(v.Status))
	if v.Tree.Count > 0 {
		fmt.Fprintf(w, "Nodes:   %d (%d completed, %d errors, %d rate limited)\n",
			v.Tree.Count,
			v.Counts[models.StatusCompleted],
			v.Counts[models.StatusError],
			v.Counts[models.StatusRateLimited])
	}
	if !v.LastPong.IsZero() {
		fmt.Fprintf(w, "Last pong: %s\n", humanize.Time(v.LastPong))
	}
}

func writeReport(path string, t render.DisplayTree) error {
	html, err := render.HTML(t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
