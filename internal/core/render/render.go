// Package render projects the tree store into a display structure and from
// there into terminal text or a standalone HTML report.
//
// Render is pure: the same store contents and analysis always give the same
// DisplayTree.
package render

import (
	"time"

	"github.com/neilberkman/linkscout/internal/core/models"
)

// Source is the read side of the tree store
type Source interface {
	Len() int
	FindRoot() (models.Node, bool)
	ResolveChildren(models.Node) []models.Node
}

// Options for Render
type Options struct {
	// ArticleTitle is shown in the placeholder before any node arrives
	ArticleTitle string
}

// DisplayNode is one rendered node
type DisplayNode struct {
	ID           string
	Title        string
	URL          string
	Source       string
	Snippet      string
	SearchQuery  string
	ErrorMessage string
	Status       models.Status
	Icon         string
	Timestamp    time.Time
	Depth        int
	Children     []*DisplayNode
}

// DisplayTree is either a placeholder or an optional analysis block followed
// by the tree.
type DisplayTree struct {
	Placeholder string
	Analysis    string
	Root        *DisplayNode

	// Count is the number of nodes reachable from Root
	Count int
}

// IsPlaceholder reports whether there is no tree to show yet
func (t DisplayTree) IsPlaceholder() bool {
	return t.Root == nil
}

// StatusIcon maps a node status to its glyph. Unknown statuses get a neutral
// dot.
func StatusIcon(s models.Status) string {
	switch s {
	case models.StatusSearching:
		return "🔍"
	case models.StatusCompleted:
		return "✅"
	case models.StatusError:
		return "❌"
	case models.StatusRateLimited:
		return "⏳"
	case models.StatusPending:
		return "🕓"
	default:
		return "⚪"
	}
}

// Render builds the display tree. A store with nodes but no root renders as
// the placeholder; the next snapshot usually fixes it.
func Render(src Source, analysis string, opts Options) DisplayTree {
	placeholder := DisplayTree{Placeholder: opts.ArticleTitle}
	if src == nil || src.Len() == 0 {
		return placeholder
	}

	root, ok := src.FindRoot()
	if !ok {
		return placeholder
	}

	b := builder{src: src, visited: make(map[string]bool)}
	return DisplayTree{
		Analysis: analysis,
		Root:     b.build(root, 0),
		Count:    b.count,
	}
}

type builder struct {
	src     Source
	visited map[string]bool
	count   int
}

// build walks depth first. A node already placed is not placed again, which
// also stops a cyclic snapshot from recursing forever.
func (b *builder) build(n models.Node, depth int) *DisplayNode {
	b.visited[n.ID] = true
	b.count++

	dn := &DisplayNode{
		ID:           n.ID,
		Title:        n.Title,
		URL:          n.URL,
		Source:       n.Source,
		Snippet:      n.Snippet,
		SearchQuery:  n.SearchQuery,
		ErrorMessage: n.ErrorMessage,
		Status:       n.Status,
		Icon:         StatusIcon(n.Status),
		Timestamp:    n.Time(),
		Depth:        depth,
	}

	for _, child := range b.src.ResolveChildren(n) {
		if b.visited[child.ID] {
			continue
		}
		dn.Children = append(dn.Children, b.build(child, depth+1))
	}
	return dn
}

// Walk visits every node in display order
func (t DisplayTree) Walk(fn func(n *DisplayNode)) {
	var walk func(n *DisplayNode)
	walk = func(n *DisplayNode) {
		fn(n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	if t.Root != nil {
		walk(t.Root)
	}
}
