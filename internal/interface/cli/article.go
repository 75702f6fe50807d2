package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/models"
)

type articleFlags struct {
	title    string
	url      string
	snippet  string
	source   string
	image    string
	json     string
	endpoint string
}

var articleOpts articleFlags

// errNoTitle is returned by headless commands; the TUI shows the
// placeholder instead.
var errNoTitle = errors.New("an article title is required (--title, --article, or as arguments)")

func addArticleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&articleOpts.title, "title", "", "Article title to explore")
	f.StringVar(&articleOpts.url, "url", "", "Article URL")
	f.StringVar(&articleOpts.snippet, "snippet", "", "Article snippet")
	f.StringVar(&articleOpts.source, "source", "", "Where the article came from")
	f.StringVar(&articleOpts.image, "image", "", "Article image URL")
	f.StringVar(&articleOpts.json, "article", "", `Article as JSON, e.g. '{"title":"Octopus","url":"https://..."}'`)
	f.StringVar(&articleOpts.endpoint, "endpoint", "", "Exploration process websocket URL (overrides config)")
}

// article builds the article from --article, then individual flags, then
// positional args as the title. A missing title is not an error here.
func (a articleFlags) article(args []string) (models.ArticleData, error) {
	var art models.ArticleData
	if a.json != "" {
		parsed, err := models.ParseArticle(a.json)
		if err != nil {
			return art, err
		}
		art = parsed
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&art.Title, strings.TrimSpace(a.title))
	set(&art.URL, a.url)
	set(&art.Snippet, a.snippet)
	set(&art.Source, a.source)
	set(&art.Image, a.image)

	if art.Title == "" && len(args) > 0 {
		art.Title = strings.TrimSpace(strings.Join(args, " "))
	}
	if art.Title == "" {
		return art, nil
	}
	return art, art.Validate()
}
