package mcp

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

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neilberkman/linkscout/internal/core/config"
	"github.com/neilberkman/linkscout/internal/core/db"
	"github.com/neilberkman/linkscout/internal/core/mockserver"
)

func setup(t *testing.T) (Options, *db.DB) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	demo := mockserver.New(mockserver.Config{MaxDepth: 2, MaxPerLevel: 2}, logger)
	srv := httptest.NewServer(demo)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.BaseDelay = config.Duration{Duration: 10 * time.Millisecond}
	cfg.MaxDelay = config.Duration{Duration: 50 * time.Millisecond}
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")

	database, err := db.New(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return Options{Config: cfg, Logger: logger, Version: "test"}, database
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestExploreArticleAndList(t *testing.T) {
	opts, database := setup(t)

	text, isErr := call(t, makeExploreArticleHandler(opts, database), "explore_article", map[string]interface{}{
		"title":           "Octopus",
		"url":             "https://en.wikipedia.org/wiki/Octopus",
		"linger_seconds":  5,
		"timeout_seconds": 10,
	})
	require.False(t, isErr, text)

	var result ExplorationResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, "Octopus", result.Title)
	assert.Equal(t, "completed", result.State)
	assert.Equal(t, mockserver.Provider, result.AIProvider)
	assert.Equal(t, 7, result.TotalNodes)
	assert.Equal(t, 7, result.StatusCounts["completed"])
	assert.Contains(t, result.Tree, "Octopus")
	assert.NotContains(t, result.Tree, "\x1b[")
	assert.Contains(t, result.FinalAnalysis, "Explored 7 websites")
	assert.Empty(t, result.Error)

	text, isErr = call(t, makeListExplorationsHandler(database), "list_explorations", map[string]interface{}{
		"query":      "octo",
		"after_date": "yesterday",
	})
	require.False(t, isErr, text)

	var list struct {
		Explorations []ExplorationSummary `json:"explorations"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list.Explorations, 1)
	got := list.Explorations[0]
	assert.Equal(t, "Octopus", got.Title)
	assert.Equal(t, 7, got.TotalNodes)
	assert.NotEmpty(t, got.FinishedAt)
	assert.True(t, got.HasAnalysis)
}

func TestExploreArticleValidation(t *testing.T) {
	opts, database := setup(t)
	handler := makeExploreArticleHandler(opts, database)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing title", map[string]interface{}{}},
		{"blank title", map[string]interface{}{"title": "   "}},
		{"bad url", map[string]interface{}{"title": "Octopus", "url": "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, isErr := call(t, handler, "explore_article", tt.args)
			assert.True(t, isErr)
		})
	}

	runs, err := database.ListExplorations(db.ExplorationFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListExplorationsErrors(t *testing.T) {
	_, database := setup(t)

	_, isErr := call(t, makeListExplorationsHandler(database), "list_explorations", map[string]interface{}{"after_date": "xyzzy"})
	assert.True(t, isErr)

	_, isErr = call(t, makeListExplorationsHandler(nil), "list_explorations", nil)
	assert.True(t, isErr)
}

func TestNewServerRegistersTools(t *testing.T) {
	opts, database := setup(t)
	s := NewServer(opts, database)
	require.NotNil(t, s)

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"explore_article"`)
	assert.Contains(t, string(out), `"list_explorations"`)
}
