package mockserver

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/neilberkman/linkscout/internal/core/events"
	"github.com/neilberkman/linkscout/internal/core/models"
)

// explorer grows one synthetic tree and streams it to its session
type explorer struct {
	sess    *session
	cfg     Config
	article models.ArticleData
	tree    models.Snapshot
	rootID  string
}

func newExplorer(sess *session, article models.ArticleData) *explorer {
	return &explorer{
		sess:    sess,
		cfg:     sess.server.cfg,
		article: article,
		tree:    models.NewSnapshot(),
	}
}

func (e *explorer) run(ctx context.Context) {
	root := e.newNode(e.article.Title, "")
	root.URL = e.article.URL
	root.Snippet = e.article.Snippet
	root.Image = e.article.Image
	root.Source = e.article.Source
	e.tree.Add(root.ID, root)
	e.rootID = root.ID

	e.sess.emit(events.NameSearchStarted, events.SearchStarted{AIProvider: Provider})
	e.emitTree()

	e.expand(ctx, root.ID, 0)
	if ctx.Err() != nil {
		e.sess.logger.Info("search abandoned", "title", e.article.Title)
		return
	}

	total := e.tree.Len()
	e.sess.emit(events.NameSearchComplete, events.SearchComplete{TotalNodes: &total})
	e.sess.logger.Info("search complete", "title", e.article.Title, "nodes", total)

	if !e.sleep(ctx) {
		return
	}
	e.sess.emit(events.NameFinalAnalysis, events.FinalAnalysis{Message: e.analysis()})
}

func (e *explorer) expand(ctx context.Context, id string, depth int) {
	if ctx.Err() != nil {
		return
	}
	if depth >= e.cfg.MaxDepth {
		e.update(id, func(n *models.Node) { n.Status = models.StatusCompleted })
		return
	}
	if !e.sleep(ctx) {
		return
	}

	if !e.sess.server.allowCall() {
		e.update(id, func(n *models.Node) { n.Status = models.StatusRateLimited })
		return
	}

	queries := relatedQueries(e.tree.Nodes[id].Title, e.cfg.MaxPerLevel)
	if len(queries) == 0 {
		e.update(id, func(n *models.Node) {
			n.Status = models.StatusError
			n.ErrorMessage = "Could not generate related search queries"
		})
		return
	}

	for _, q := range queries {
		if ctx.Err() != nil {
			return
		}

		child := e.newNode(resultTitle(q), id)
		child.URL = "https://example.org/articles/" + slug(q)
		child.Source = "example.org"
		child.Snippet = fmt.Sprintf("Synthetic result for %q.", q)
		child.SearchQuery = q
		e.tree.Add(child.ID, child)

		// the parent lists the child before the snapshot goes out
		e.update(id, func(n *models.Node) { n.Children = append(n.Children, child.ID) })

		if depth < e.cfg.MaxDepth-1 {
			e.expand(ctx, child.ID, depth+1)
		} else {
			if !e.sleep(ctx) {
				return
			}
			e.update(child.ID, func(n *models.Node) { n.Status = models.StatusCompleted })
		}
	}

	e.update(id, func(n *models.Node) { n.Status = models.StatusCompleted })
}

func (e *explorer) newNode(title, parent string) models.Node {
	n := models.Node{
		ID:        uuid.NewString(),
		Title:     title,
		Children:  []string{},
		Status:    models.StatusSearching,
		Timestamp: e.sess.server.now().UTC().Format(time.RFC3339Nano),
	}
	if parent != "" {
		p := parent
		n.ParentID = &p
	}
	return n
}

// update applies fn to a node and streams the new tree
func (e *explorer) update(id string, fn func(*models.Node)) {
	n := e.tree.Nodes[id]
	fn(&n)
	e.tree.Nodes[id] = n
	e.emitTree()
}

func (e *explorer) emitTree() {
	e.sess.emit(events.NameTreeUpdate, e.tree)
}

func (e *explorer) sleep(ctx context.Context) bool {
	if e.cfg.StepDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(e.cfg.StepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *explorer) analysis() string {
	counts := make(map[models.Status]int)
	for _, n := range e.tree.Nodes {
		counts[n.Status]++
	}

	var related []string
	for _, id := range e.tree.Nodes[e.rootID].Children {
		related = append(related, e.tree.Nodes[id].Title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Explored %d websites starting from %q.", e.tree.Len(), e.article.Title)
	if len(related) > 0 {
		fmt.Fprintf(&b, " The strongest threads were %s.", strings.Join(related, "; "))
	}
	if n := counts[models.StatusRateLimited]; n > 0 {
		fmt.Fprintf(&b, " %d branches were cut short by the provider quota.", n)
	}
	if n := counts[models.StatusError]; n > 0 {
		fmt.Fprintf(&b, " %d branches failed.", n)
	}
	return b.String()
}

var topicQueries = []struct {
	keywords []string
	queries  []string
}{
	{[]string{"ai", "artificial intelligence", "machine learning"}, []string{"deep learning applications", "neural network architectures", "AI ethics and safety"}},
	{[]string{"climate", "environment", "sustainability"}, []string{"renewable energy solutions", "carbon footprint reduction", "sustainable technology"}},
	{[]string{"technology", "tech", "digital"}, []string{"emerging technologies", "digital transformation", "tech innovation trends"}},
	{[]string{"health", "medical", "healthcare"}, []string{"medical technology advances", "healthcare innovation", "digital health solutions"}},
	{[]string{"business", "startup", "entrepreneur"}, []string{"startup growth strategies", "business model innovation", "entrepreneurship trends"}},
	{[]string{"science", "research", "study"}, []string{"scientific breakthroughs", "research methodology", "scientific innovation"}},
}

// relatedQueries derives follow-up searches from a title. Single-word
// keywords match whole words; phrases match anywhere.
func relatedQueries(title string, limit int) []string {
	title = strings.TrimSpace(title)
	if title == "" || limit <= 0 {
		return nil
	}

	lower := strings.ToLower(title)
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	var queries []string
	for _, topic := range topicQueries {
		for _, kw := range topic.keywords {
			if (strings.Contains(kw, " ") && strings.Contains(lower, kw)) || wordSet[kw] {
				queries = topic.queries
				break
			}
		}
		if queries != nil {
			break
		}
	}

	if queries == nil {
		fields := strings.Fields(title)
		first, last := title, title
		if len(fields) >= 2 {
			first, last = fields[0], fields[len(fields)-1]
		}
		queries = []string{
			first + " applications",
			last + " trends",
			"future of " + first,
		}
	}

	if len(queries) > limit {
		queries = queries[:limit]
	}
	return queries
}

func resultTitle(q string) string {
	r, size := utf8.DecodeRuneInString(q)
	if r == utf8.RuneError {
		return q
	}
	return string(unicode.ToUpper(r)) + q[size:]
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
