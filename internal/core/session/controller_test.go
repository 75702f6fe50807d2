package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilberkman/linkscout/internal/core/events"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/ratelimit"
	"github.com/neilberkman/linkscout/internal/core/transport"
	"github.com/neilberkman/linkscout/internal/core/tree"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type sent struct {
	event   string
	payload interface{}
}

type fakeConn struct {
	state    transport.State
	msgs     chan transport.Message
	sent     []sent
	connects int
	sendErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan transport.Message, 16)}
}

func (f *fakeConn) Connect(context.Context) error {
	f.connects++
	if f.state == transport.Disconnected {
		f.state = transport.Connecting
	}
	return nil
}

func (f *fakeConn) Send(event string, payload interface{}) error {
	if f.state != transport.Connected {
		return transport.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{event, payload})
	return nil
}

func (f *fakeConn) Messages() <-chan transport.Message { return f.msgs }
func (f *fakeConn) State() transport.State             { return f.state }

type finished struct {
	id          string
	total       int
	hasAnalysis bool
}

type fakeRecorder struct {
	started  []models.ArticleData
	finished []finished
}

func (r *fakeRecorder) Started(a models.ArticleData) (string, error) {
	r.started = append(r.started, a)
	return "rec-1", nil
}

func (r *fakeRecorder) Finished(id string, total int, _ tree.Counts, hasAnalysis bool) error {
	r.finished = append(r.finished, finished{id, total, hasAnalysis})
	return nil
}

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped = true }

func manualGovernor() *ratelimit.Governor {
	return ratelimit.New(ratelimit.WithTicker(func(time.Duration) ratelimit.Ticker {
		return &manualTicker{ch: make(chan time.Time, 1)}
	}))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frame(event, payload string) transport.Message {
	return transport.Message{Kind: transport.KindFrame, Event: event, Data: json.RawMessage(payload)}
}

type harness struct {
	c    *Controller
	conn *fakeConn
	rec  *fakeRecorder
}

func newHarness(title string) *harness {
	conn := newFakeConn()
	rec := &fakeRecorder{}
	c := New(Deps{
		Conn:     conn,
		Governor: manualGovernor(),
		Recorder: rec,
		Logger:   quietLogger(),
	}, models.ArticleData{Title: title, URL: "https://en.wikipedia.org/wiki/Octopus"})
	return &harness{c: c, conn: conn, rec: rec}
}

// connected brings the harness to Connected
func (h *harness) connected(t *testing.T) {
	t.Helper()
	h.c.Connect()
	require.Equal(t, Connecting, h.c.State())
	h.conn.state = transport.Connected
	h.c.HandleMessage(transport.Message{Kind: transport.KindOpen})
	require.Equal(t, Connected, h.c.State())
}

// ---------------------------------------------------------------------------
// scenarios
// ---------------------------------------------------------------------------

func TestOctopusScenario(t *testing.T) {
	h := newHarness("Octopus")
	c := h.c

	v := c.View()
	assert.Equal(t, Idle, v.State)
	assert.False(t, v.StartEnabled)
	assert.True(t, v.Tree.IsPlaceholder())
	assert.Equal(t, "Octopus", v.Tree.Placeholder)

	h.connected(t)
	v = c.View()
	assert.True(t, v.StartEnabled)
	assert.Equal(t, ConnConnected, v.Conn)
	assert.Equal(t, "Connected to server", v.Status)

	require.NoError(t, c.StartSearch())
	require.Len(t, h.conn.sent, 1)
	assert.Equal(t, events.NameStartSearch, h.conn.sent[0].event)
	payload, err := json.Marshal(h.conn.sent[0].payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"article_data": {"title": "Octopus", "url": "https://en.wikipedia.org/wiki/Octopus"}}`, string(payload))
	assert.Len(t, h.rec.started, 1)

	v = c.View()
	assert.Equal(t, Searching, v.State)
	assert.True(t, v.IsSearching)
	assert.False(t, v.StartEnabled)

	c.HandleMessage(frame(events.NameSearchStarted, `{"ai_provider": "Gemini"}`))
	assert.Equal(t, "Gemini is finding related websites...", c.View().Status)

	c.HandleMessage(frame(events.NameTreeUpdate, `{
		"A": {"id": "A", "parent_id": null, "title": "Octopus", "status": "searching", "children": []}
	}`))
	v = c.View()
	require.False(t, v.Tree.IsPlaceholder())
	assert.Equal(t, "A", v.Tree.Root.ID)
	assert.Equal(t, Searching, v.State)

	c.HandleMessage(frame(events.NameTreeUpdate, `{
		"A": {"id": "A", "parent_id": null, "title": "Octopus", "status": "searching", "children": ["B", "C"]},
		"B": {"id": "B", "parent_id": "A", "title": "Cephalopod", "status": "completed", "children": []},
		"C": {"id": "C", "parent_id": "A", "title": "Squid", "status": "searching", "children": []}
	}`))
	v = c.View()
	require.Len(t, v.Tree.Root.Children, 2)
	assert.Equal(t, Searching, v.State)
	assert.Equal(t, 1, v.Counts[models.StatusCompleted])

	c.HandleMessage(frame(events.NameTreeUpdate, `{
		"A": {"id": "A", "parent_id": null, "title": "Octopus", "status": "completed", "children": ["B", "C"]},
		"B": {"id": "B", "parent_id": "A", "title": "Cephalopod", "status": "completed", "children": []},
		"C": {"id": "C", "parent_id": "A", "title": "Squid", "status": "error", "error_message": "timeout", "children": []}
	}`))
	v = c.View()
	assert.Equal(t, Completed, v.State)
	assert.False(t, v.IsSearching)
	assert.True(t, v.StartEnabled)
	assert.Equal(t, "Gemini search complete!", v.Status)
	require.Len(t, h.rec.finished, 1)
	assert.Equal(t, finished{"rec-1", 3, false}, h.rec.finished[0])

	c.HandleMessage(frame(events.NameSearchComplete, `{"total_nodes": 3}`))
	assert.Equal(t, "Search complete! Found 3 websites.", c.View().Status)
	assert.Len(t, h.rec.finished, 1, "already recorded on completion")

	c.HandleMessage(frame(events.NameHistoryAnalysis, `{"message": "Octopuses are remarkable."}`))
	v = c.View()
	assert.Equal(t, "Octopuses are remarkable.", v.FinalAnalysis)
	assert.Equal(t, "Octopuses are remarkable.", v.Tree.Analysis)
	assert.Equal(t, "Analysis complete! Check the insights above.", v.Status)
	require.Len(t, h.rec.finished, 2)
	assert.True(t, h.rec.finished[1].hasAnalysis)

	// a new search starts from a clean slate
	require.NoError(t, c.StartSearch())
	v = c.View()
	assert.Equal(t, Searching, v.State)
	assert.True(t, v.Tree.IsPlaceholder())
	assert.Empty(t, v.FinalAnalysis)
}

func TestSearchCompleteWithoutTotal(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	require.NoError(t, h.c.StartSearch())

	h.c.HandleMessage(frame(events.NameTreeUpdate, `{"A": {"title": "Octopus", "status": "searching"}}`))
	h.c.HandleMessage(frame(events.NameSearchComplete, `{}`))

	v := h.c.View()
	assert.Equal(t, Completed, v.State)
	assert.Equal(t, "Search complete! Found 1 websites.", v.Status)
}

func TestStartGuards(t *testing.T) {
	t.Run("not connected reconnects", func(t *testing.T) {
		h := newHarness("Octopus")
		err := h.c.StartSearch()

		var gv *GuardViolation
		require.ErrorAs(t, err, &gv)
		assert.Equal(t, reasonNotConnected, gv.Reason)
		assert.Equal(t, 1, h.conn.connects)
		assert.Equal(t, "Not connected to server", h.c.View().Status)
		assert.Empty(t, h.conn.sent)
	})

	t.Run("already searching", func(t *testing.T) {
		h := newHarness("Octopus")
		h.connected(t)
		require.NoError(t, h.c.StartSearch())

		var gv *GuardViolation
		require.ErrorAs(t, h.c.StartSearch(), &gv)
		assert.Equal(t, reasonSearching, gv.Reason)
		assert.Len(t, h.conn.sent, 1)
	})

	t.Run("blank title", func(t *testing.T) {
		h := newHarness("   ")
		h.connected(t)

		var gv *GuardViolation
		require.ErrorAs(t, h.c.StartSearch(), &gv)
		assert.Equal(t, "No article title specified", h.c.View().Status)
		assert.False(t, h.c.View().StartEnabled)
	})

	t.Run("send failure", func(t *testing.T) {
		h := newHarness("Octopus")
		h.connected(t)
		h.conn.sendErr = errors.New("broken pipe")

		err := h.c.StartSearch()
		require.Error(t, err)
		v := h.c.View()
		assert.Equal(t, Connected, v.State)
		assert.False(t, v.IsSearching)
		assert.Equal(t, "Failed to send search request", v.Status)
		assert.Empty(t, h.rec.started)
	})
}

func TestRateLimitCountdown(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)

	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "Too many requests", "wait_time": 3}`))
	v := h.c.View()
	assert.Equal(t, "Too many requests", v.Status)
	assert.Equal(t, ToneWarning, v.Tone)
	assert.False(t, v.StartEnabled)
	require.NotNil(t, v.RateLimitRemaining)
	assert.Equal(t, 3, *v.RateLimitRemaining)
	assert.Equal(t, "Wait 3s (Rate Limited)", v.Countdown)

	var gv *GuardViolation
	require.ErrorAs(t, h.c.StartSearch(), &gv)
	assert.Equal(t, reasonRateLimited, gv.Reason)

	var shown []int
	for i := 0; i < 3; i++ {
		h.c.HandleTick()
		if r := h.c.View().RateLimitRemaining; r != nil {
			shown = append(shown, *r)
		}
	}
	assert.Equal(t, []int{2, 1}, shown)

	v = h.c.View()
	assert.Nil(t, v.RateLimitRemaining)
	assert.Equal(t, "Ready to search", v.Status)
	assert.True(t, v.StartEnabled)
	assert.Equal(t, Connected, v.State, "state label is unchanged by throttling")
}

func TestRateLimitSupersedes(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)

	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "first", "wait_time": 10}`))
	h.c.HandleTick()
	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "second", "wait_time": 2}`))

	v := h.c.View()
	assert.Equal(t, "second", v.Status)
	require.NotNil(t, v.RateLimitRemaining)
	assert.Equal(t, 2, *v.RateLimitRemaining)

	h.c.HandleTick()
	h.c.HandleTick()
	assert.True(t, h.c.View().StartEnabled)
}

func TestRateLimitBeforeAnyNodeReleasesSearch(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	require.NoError(t, h.c.StartSearch())

	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "Slow down", "wait_time": 1}`))
	assert.Equal(t, Searching, h.c.State())

	h.c.HandleTick()
	v := h.c.View()
	assert.Equal(t, Connected, v.State)
	assert.False(t, v.IsSearching)
	assert.True(t, v.StartEnabled)
}

func TestRateLimitZeroWaitIsImmediatelyReady(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)

	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "ok", "wait_time": 0}`))
	v := h.c.View()
	assert.Nil(t, v.RateLimitRemaining)
	assert.True(t, v.StartEnabled)
	assert.Equal(t, "Ready to search", v.Status)
}

func TestDisconnectAbandonsSearch(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	require.NoError(t, h.c.StartSearch())
	h.c.HandleMessage(frame(events.NameTreeUpdate, `{"A": {"title": "Octopus", "status": "searching"}}`))

	h.conn.state = transport.Connecting
	h.c.HandleMessage(transport.Message{Kind: transport.KindClosed, Reason: "transport close"})

	v := h.c.View()
	assert.Equal(t, Connecting, v.State)
	assert.False(t, v.IsSearching)
	assert.False(t, v.StartEnabled)
	assert.Equal(t, ConnError, v.Conn)
	assert.Equal(t, "Disconnected: transport close", v.Status)

	h.conn.state = transport.Connected
	h.c.HandleMessage(transport.Message{Kind: transport.KindReconnected, Attempt: 2})
	h.c.HandleMessage(transport.Message{Kind: transport.KindOpen})

	v = h.c.View()
	assert.Equal(t, Connected, v.State)
	assert.Equal(t, "Reconnected to server", v.Status)
	assert.True(t, v.StartEnabled)
	assert.Len(t, h.conn.sent, 1, "reconnecting does not resume the search")
	assert.False(t, v.Tree.IsPlaceholder(), "the last tree stays visible")
}

func TestRetriesExhausted(t *testing.T) {
	h := newHarness("Octopus")
	h.c.Connect()
	h.c.HandleMessage(transport.Message{Kind: transport.KindError, Err: errors.New("dial refused")})
	assert.Equal(t, "Connection failed: dial refused", h.c.View().Status)

	h.conn.state = transport.Disconnected
	h.c.HandleMessage(transport.Message{Kind: transport.KindExhausted})
	v := h.c.View()
	assert.Equal(t, Idle, v.State)
	assert.Equal(t, "Reconnection failed", v.Status)

	h.c.Reconnect()
	assert.Equal(t, 2, h.conn.connects)
	assert.Equal(t, Connecting, h.c.State())
}

func TestRemoteError(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	require.NoError(t, h.c.StartSearch())

	h.c.HandleMessage(frame(events.NameError, `{"message": "Article title is required"}`))

	v := h.c.View()
	assert.Equal(t, ConnError, v.Conn)
	assert.False(t, v.IsSearching)
	assert.Equal(t, Connected, v.State)
	assert.Equal(t, "Error: Article title is required", v.Status)
	require.NotNil(t, v.LastError)
	assert.Contains(t, v.LastError.Error(), "Article title is required")
	assert.True(t, v.StartEnabled, "the link is still up")
}

func TestMalformedEventsChangeNothing(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	before := h.c.View()

	h.c.HandleMessage(frame(events.NameRateLimitWarn, `{"message": "no wait"}`))
	h.c.HandleMessage(frame(events.NameTreeUpdate, `[1, 2, 3]`))
	h.c.HandleMessage(frame("teleport", `{}`))

	after := h.c.View()
	assert.Equal(t, before.Status, after.Status)
	assert.Nil(t, after.RateLimitRemaining)
	assert.True(t, after.Tree.IsPlaceholder())
}

func TestTreeWithoutRootShowsPlaceholder(t *testing.T) {
	h := newHarness("Octopus")
	h.connected(t)
	require.NoError(t, h.c.StartSearch())

	h.c.HandleMessage(frame(events.NameTreeUpdate, `{"B": {"parent_id": "A", "title": "Orphan", "status": "completed"}}`))
	v := h.c.View()
	assert.True(t, v.Tree.IsPlaceholder())
	assert.Equal(t, Completed, v.State, "every stored node is terminal")
}

func TestExpandCollapse(t *testing.T) {
	h := newHarness("Octopus")
	assert.True(t, h.c.View().Expanded)
	h.c.CollapseAll()
	assert.False(t, h.c.View().Expanded)
	h.c.ExpandAll()
	assert.True(t, h.c.View().Expanded)
}

func TestPingAndRateLimitStatus(t *testing.T) {
	h := newHarness("Octopus")
	require.ErrorIs(t, h.c.Ping(), transport.ErrNotConnected)

	h.connected(t)
	require.NoError(t, h.c.Ping())
	require.NoError(t, h.c.RequestRateLimitStatus())
	require.Len(t, h.conn.sent, 2)
	assert.Equal(t, events.NamePing, h.conn.sent[0].event)
	assert.Equal(t, events.NameGetRateLimitStatus, h.conn.sent[1].event)

	h.c.HandleMessage(frame(events.NamePong, `{}`))
	assert.False(t, h.c.View().LastPong.IsZero())

	h.c.HandleMessage(frame(events.NameRateLimitStatus,
		`{"can_make_call": false, "wait_time": 12, "recent_calls": 10, "max_calls_per_minute": 10}`))
	v := h.c.View()
	assert.Equal(t, ToneWarning, v.Tone)
	assert.Contains(t, v.Status, "10 of 10")
}

func TestRunPublishesLatestView(t *testing.T) {
	h := newHarness("Octopus")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- h.c.Run(ctx) }()

	waitFor := func(pred func(View) bool) View {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case v := <-h.c.Views():
				if pred(v) {
					return v
				}
			case <-deadline:
				t.Fatal("timed out waiting for view")
				return View{}
			}
		}
	}

	waitFor(func(v View) bool { return v.State == Connecting })

	ok := h.c.Submit(func(c *Controller) { h.conn.state = transport.Connected })
	require.True(t, ok)
	h.conn.msgs <- transport.Message{Kind: transport.KindOpen}
	waitFor(func(v View) bool { return v.State == Connected })

	var startErr error
	require.True(t, h.c.Submit(func(c *Controller) { startErr = c.StartSearch() }))
	v := waitFor(func(v View) bool { return v.State == Searching })
	assert.True(t, v.IsSearching)

	h.conn.msgs <- frame(events.NameTreeUpdate, `{"A": {"title": "Octopus", "status": "completed"}}`)
	v = waitFor(func(v View) bool { return v.State == Completed })
	assert.Equal(t, 1, v.Tree.Count)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.NoError(t, startErr)
	assert.False(t, h.c.Submit(func(*Controller) {}), "submit after Run returns")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "searching", Searching.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
