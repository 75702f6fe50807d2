package mockserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilberkman/linkscout/internal/core/db"
	"github.com/neilberkman/linkscout/internal/core/events"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/session"
	"github.com/neilberkman/linkscout/internal/core/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	s := New(cfg, quietLogger())
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type rawClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *rawClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawClient{t: t, conn: conn}
}

func (c *rawClient) send(event string, data interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func (c *rawClient) next() (string, json.RawMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env envelope
	require.NoError(c.t, c.conn.ReadJSON(&env))
	return env.Event, env.Data
}

// until reads frames up to and including the first one named event. The
// last tree snapshot seen on the way is returned too.
func (c *rawClient) until(event string) (json.RawMessage, models.Snapshot) {
	c.t.Helper()
	var last models.Snapshot
	for {
		name, data := c.next()
		if name == events.NameTreeUpdate {
			require.NoError(c.t, json.Unmarshal(data, &last))
		}
		if name == event {
			return data, last
		}
	}
}

func fastConfig() Config {
	return Config{MaxDepth: 2, MaxPerLevel: 3}
}

func TestConnectedAndPing(t *testing.T) {
	s, url := startServer(t, fastConfig())
	c := dial(t, url)

	name, data := c.next()
	require.Equal(t, events.NameConnected, name)
	var connected events.Connected
	require.NoError(t, json.Unmarshal(data, &connected))
	assert.Equal(t, "Connected to server successfully", connected.Message)
	assert.Equal(t, Provider, connected.AIProvider)
	assert.NotEmpty(t, connected.SessionID)
	assert.Equal(t, 1, s.Sessions())

	c.send(events.NamePing, nil)
	data, _ = c.until(events.NamePong)
	assert.Contains(t, string(data), connected.SessionID)
}

func TestRateLimitStatus(t *testing.T) {
	cfg := fastConfig()
	cfg.CallsPerMinute = 4
	s, url := startServer(t, cfg)
	require.True(t, s.allowCall())

	c := dial(t, url)
	c.send(events.NameGetRateLimitStatus, nil)
	data, _ := c.until(events.NameRateLimitStatus)

	var st events.RateLimitStatus
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.CanMakeCall)
	assert.Equal(t, 1, st.RecentCalls)
	assert.Equal(t, 4, st.MaxCallsPerMinute)
	assert.Zero(t, st.WaitTime)
}

func TestStartSearchValidation(t *testing.T) {
	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"no data", nil, "No data provided"},
		{"empty object", map[string]interface{}{}, "No data provided"},
		{"missing title", map[string]interface{}{"article_data": map[string]string{"url": "https://x.org"}}, "Article data is required"},
		{"blank title", map[string]interface{}{"article_data": map[string]string{"title": "   "}}, "Article title cannot be empty"},
		{"blank legacy title", map[string]interface{}{"article_title": " "}, "Article title cannot be empty"},
		{"bad url", map[string]interface{}{"article_data": map[string]string{"title": "Octopus", "url": "not a url"}}, "Invalid article data"},
	}

	_, url := startServer(t, fastConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, url)
			c.send(events.NameStartSearch, tt.data)
			data, _ := c.until(events.NameError)

			var e events.RemoteError
			require.NoError(t, json.Unmarshal(data, &e))
			assert.Contains(t, e.Message, tt.want)
		})
	}
}

func TestStartSearchRateLimited(t *testing.T) {
	cfg := fastConfig()
	cfg.CallsPerMinute = 1
	s, url := startServer(t, cfg)
	require.True(t, s.allowCall())

	c := dial(t, url)
	c.send(events.NameStartSearch, events.StartSearch{ArticleData: models.ArticleData{Title: "Octopus"}})
	data, _ := c.until(events.NameRateLimitWarn)

	ev, err := events.Decode(events.NameRateLimitWarn, data)
	require.NoError(t, err)
	warn := ev.(events.RateLimitWarning)
	assert.Greater(t, warn.Wait(), 50.0)
	assert.Contains(t, warn.Message, "Rate limited. Please wait")
	assert.Contains(t, warn.Message, "seconds before starting a new search.")
}

func TestSearchGrowsTree(t *testing.T) {
	_, url := startServer(t, fastConfig())
	c := dial(t, url)

	c.send(events.NameStartSearch, map[string]string{"article_title": "Octopus"})

	data, _ := c.until(events.NameSearchStarted)
	assert.Contains(t, string(data), Provider)

	data, snap := c.until(events.NameSearchComplete)
	var done events.SearchComplete
	require.NoError(t, json.Unmarshal(data, &done))
	require.NotNil(t, done.TotalNodes)
	assert.Equal(t, 13, *done.TotalNodes)
	assert.Equal(t, 13, snap.Len())

	root := snap.Nodes[snap.IDs[0]]
	assert.True(t, root.IsRoot())
	assert.Equal(t, "Octopus", root.Title)
	require.Len(t, root.Children, 3)

	var titles []string
	for _, id := range root.Children {
		child := snap.Nodes[id]
		titles = append(titles, child.Title)
		assert.Equal(t, root.ID, *child.ParentID)
		assert.Len(t, child.Children, 3)
		assert.NotEmpty(t, child.SearchQuery)
	}
	assert.Equal(t, []string{"Octopus applications", "Octopus trends", "Future of Octopus"}, titles)

	for _, id := range snap.IDs {
		assert.Equal(t, models.StatusCompleted, snap.Nodes[id].Status, snap.Nodes[id].Title)
	}

	data, _ = c.until(events.NameFinalAnalysis)
	assert.Contains(t, string(data), `Explored 13 websites`)
}

func TestQuotaCutsBranchesShort(t *testing.T) {
	cfg := fastConfig()
	cfg.CallsPerMinute = 2
	_, url := startServer(t, cfg)
	c := dial(t, url)

	c.send(events.NameStartSearch, events.StartSearch{ArticleData: models.ArticleData{Title: "Octopus"}})
	_, snap := c.until(events.NameSearchComplete)

	counts := make(map[models.Status]int)
	for _, n := range snap.Nodes {
		counts[n.Status]++
	}
	assert.Equal(t, 7, snap.Len())
	assert.Equal(t, 2, counts[models.StatusRateLimited])
	assert.Equal(t, 5, counts[models.StatusCompleted])

	data, _ := c.until(events.NameFinalAnalysis)
	assert.Contains(t, string(data), "cut short")
}

func TestRestartDropsOldTree(t *testing.T) {
	cfg := fastConfig()
	cfg.StepDelay = 20 * time.Millisecond
	_, url := startServer(t, cfg)
	c := dial(t, url)

	c.send(events.NameStartSearch, map[string]string{"article_title": "Octopus"})
	c.until(events.NameSearchStarted)
	c.until(events.NameTreeUpdate)

	c.send(events.NameStartSearch, map[string]string{"article_title": "Squid"})
	c.until(events.NameSearchStarted)

	// every frame after the second search_started belongs to the new search
	updates := 0
	for {
		name, data := c.next()
		if name == events.NameSearchComplete {
			break
		}
		if name != events.NameTreeUpdate {
			continue
		}
		updates++
		var snap models.Snapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		for _, n := range snap.Nodes {
			assert.NotContains(t, n.Title, "Octopus")
			if n.IsRoot() {
				assert.Equal(t, "Squid", n.Title)
			}
		}
	}
	assert.Greater(t, updates, 0)
}

// TestEndToEnd drives the real transport and session controller against the
// demo process and records the result in sqlite.
func TestEndToEnd(t *testing.T) {
	_, url := startServer(t, fastConfig())

	history, err := db.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = history.Close() }()

	tcfg := transport.DefaultConfig(url)
	tcfg.BaseDelay = 10 * time.Millisecond
	tcfg.MaxDelay = 50 * time.Millisecond
	conn := transport.New(tcfg, quietLogger())
	defer func() { _ = conn.Close() }()

	c := session.New(session.Deps{
		Conn:     conn,
		Recorder: history.Recorder(url),
		Logger:   quietLogger(),
	}, models.ArticleData{Title: "Octopus", URL: "https://en.wikipedia.org/wiki/Octopus"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v, err := session.Watch(ctx, c, session.WatchOptions{Linger: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, session.Completed, v.State)
	assert.Equal(t, Provider, v.AIProvider)
	assert.Equal(t, 13, v.Tree.Count)
	assert.Equal(t, "Octopus", v.Tree.Root.Title)
	assert.Len(t, v.Tree.Root.Children, 3)
	assert.NotEmpty(t, v.FinalAnalysis)
	assert.Equal(t, 13, v.Counts[models.StatusCompleted])
	assert.Contains(t, v.Text(0), "Final Analysis")

	runs, err := history.ListExplorations(db.ExplorationFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Octopus", runs[0].Title)
	assert.Equal(t, url, runs[0].Endpoint)
	assert.True(t, runs[0].Finished())
	assert.Equal(t, 13, runs[0].TotalNodes)
	assert.True(t, runs[0].HasAnalysis)
}

func TestRelatedQueries(t *testing.T) {
	tests := []struct {
		title string
		limit int
		want  []string
	}{
		{"Octopus", 3, []string{"Octopus applications", "Octopus trends", "future of Octopus"}},
		{"Giant Pacific Octopus", 2, []string{"Giant applications", "Octopus trends"}},
		{"Climate change", 3, []string{"renewable energy solutions", "carbon footprint reduction", "sustainable technology"}},
		{"History of AI", 1, []string{"deep learning applications"}},
		{"Thailand", 1, []string{"Thailand applications"}},
		{"Machine learning basics", 1, []string{"deep learning applications"}},
		{"  ", 3, nil},
		{"Octopus", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, relatedQueries(tt.title, tt.limit))
		})
	}
}

func TestSlugAndTitle(t *testing.T) {
	assert.Equal(t, "future-of-octopus", slug("Future of  Octopus!"))
	assert.Equal(t, "ai-ethics-safety", slug("AI ethics & safety"))
	assert.Equal(t, "Future of x", resultTitle("future of x"))
	assert.Equal(t, "", resultTitle(""))
}
