package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
)

// Every variable in the report uses the escaping {{ }} form. Triple braces
// must never appear here.
const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2em auto; max-width: 60em; color: #222; }
h1 { font-size: 1.4em; }
.analysis { background: #f5f0ff; border-left: 4px solid #8a5cf6; padding: 0.5em 1em; margin-bottom: 1.5em; }
.analysis p { white-space: pre-line; }
.node { border-left: 2px solid #ddd; padding: 0.3em 0.8em; margin: 0.3em 0; }
.node--error { border-color: #e55; }
.node--completed { border-color: #5b5; }
.node--searching { border-color: #39f; }
.node--rate_limited { border-color: #f90; }
.node__source, .node__meta { color: #777; font-size: 0.85em; }
.node__snippet { margin: 0.2em 0; }
.node__error { color: #c22; }
</style>
</head>
<body>
{{#placeholder}}
<h1>🌳 Ready to Explore: {{placeholder}}</h1>
<p>No websites have been discovered yet.</p>
{{/placeholder}}
{{^placeholder}}
<h1>{{title}}</h1>
<p class="node__meta">{{count}} nodes · generated {{generated}}</p>
{{#analysis}}
<section class="analysis">
<h2>🧠 Final Analysis</h2>
{{#paragraphs}}<p>{{.}}</p>
{{/paragraphs}}
</section>
{{/analysis}}
{{#rows}}
<div class="node node--{{status}}" style="margin-left: {{indent}}em">
<div><span class="node__icon">{{icon}}</span> <strong class="node__title">{{title}}</strong>{{#source}} <span class="node__source">{{source}}</span>{{/source}}</div>
{{#snippet}}<p class="node__snippet">{{snippet}}</p>{{/snippet}}
{{#query}}<div class="node__meta">🔍 Found via: &quot;{{query}}&quot;</div>{{/query}}
{{#link}}<div><a href="{{link}}" target="_blank" rel="noopener noreferrer">🔗 Visit Website</a></div>{{/link}}
{{#plainURL}}<div class="node__meta">{{plainURL}}</div>{{/plainURL}}
{{#error}}<div class="node__error">{{error}}</div>{{/error}}
</div>
{{/rows}}
{{/placeholder}}
</body>
</html>
`

var reportTmpl *mustache.Template

func init() {
	var err error
	reportTmpl, err = mustache.ParseString(reportTemplate)
	if err != nil {
		panic(fmt.Sprintf("render: bad report template: %v", err))
	}
}

// HTML renders a self-contained report. All node text is escaped, and URLs
// become links only when they are http or https.
func HTML(t DisplayTree, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}

	ctx := map[string]interface{}{
		"generated": now.Format(time.RFC1123),
	}

	if t.IsPlaceholder() {
		ctx["placeholder"] = t.Placeholder
		ctx["title"] = "Ready to Explore: " + t.Placeholder
		if t.Placeholder == "" {
			// an empty string is falsy in mustache
			ctx["placeholder"] = " "
		}
		return render(ctx)
	}

	ctx["title"] = t.Root.Title
	ctx["count"] = t.Count
	if t.Analysis != "" {
		ctx["analysis"] = map[string]interface{}{"paragraphs": paragraphs(t.Analysis)}
	}

	var rows []map[string]interface{}
	t.Walk(func(n *DisplayNode) {
		row := map[string]interface{}{
			"status":  string(n.Status),
			"indent":  n.Depth * 2,
			"icon":    n.Icon,
			"title":   n.Title,
			"source":  n.Source,
			"snippet": n.Snippet,
			"query":   n.SearchQuery,
			"error":   n.ErrorMessage,
		}
		if isWebURL(n.URL) {
			row["link"] = n.URL
		} else if n.URL != "" {
			row["plainURL"] = n.URL
		}
		rows = append(rows, row)
	})
	ctx["rows"] = rows

	return render(ctx)
}

func render(ctx map[string]interface{}) (string, error) {
	out, err := reportTmpl.Render(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
