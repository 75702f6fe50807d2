package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/neilberkman/linkscout/internal/core/config"
	"github.com/neilberkman/linkscout/internal/core/db"
	"github.com/neilberkman/linkscout/internal/core/models"
	"github.com/neilberkman/linkscout/internal/core/search"
	"github.com/neilberkman/linkscout/internal/core/session"
	"github.com/neilberkman/linkscout/internal/core/transport"
)

// ExploreArticleArgs defines arguments for the explore_article tool
type ExploreArticleArgs struct {
	Title          string `json:"title" jsonschema:"description=Article title to start from,required"`
	URL            string `json:"url,omitempty" jsonschema:"description=Article URL"`
	Snippet        string `json:"snippet,omitempty" jsonschema:"description=Short article summary"`
	Source         string `json:"source,omitempty" jsonschema:"description=Where the article came from"`
	Endpoint       string `json:"endpoint,omitempty" jsonschema:"description=Exploration process websocket URL"`
	LingerSeconds  int    `json:"linger_seconds,omitempty" jsonschema:"description=How long to wait for the final analysis after the tree completes (default: 30)"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Give up after this many seconds (default: 300)"`
}

// ListExplorationsArgs defines arguments for the list_explorations tool
type ListExplorationsArgs struct {
	Query      string `json:"query,omitempty" jsonschema:"description=Title words to match"`
	Limit      int    `json:"limit,omitempty" jsonschema:"description=Max explorations to return (default: 20)"`
	AfterDate  string `json:"after_date,omitempty" jsonschema:"description=Only explorations started after this date"`
	BeforeDate string `json:"before_date,omitempty" jsonschema:"description=Only explorations started before this date"`
}

// ExplorationResult is the outcome of one headless exploration
type ExplorationResult struct {
	Title         string         `json:"title"`
	State         string         `json:"state"`
	Status        string         `json:"status"`
	AIProvider    string         `json:"ai_provider,omitempty"`
	TotalNodes    int            `json:"total_nodes"`
	StatusCounts  map[string]int `json:"status_counts"`
	Tree          string         `json:"tree"`
	FinalAnalysis string         `json:"final_analysis,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ExplorationSummary represents a recorded exploration in the list view
type ExplorationSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	URL              string `json:"url,omitempty"`
	StartedAt        string `json:"started_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
	TotalNodes       int    `json:"total_nodes"`
	CompletedNodes   int    `json:"completed_nodes"`
	ErrorNodes       int    `json:"error_nodes"`
	RateLimitedNodes int    `json:"rate_limited_nodes"`
	HasAnalysis      bool   `json:"has_analysis"`
}

// Options configure the MCP server
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string
}

// NewServer builds the MCP server and its tools. database may be nil, in
// which case nothing is recorded and list_explorations reports an error.
func NewServer(opts Options, database *db.DB) *server.MCPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := server.NewMCPServer(
		"LinkScout",
		opts.Version,
	)

	// Register explore_article tool
	exploreTool := mcp.NewTool("explore_article",
		mcp.WithDescription("Run a link-discovery exploration from an article and return the discovered tree, per-status node counts, and the final analysis when one arrives."),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Article title to start from")),
		mcp.WithString("url",
			mcp.Description("Article URL")),
		mcp.WithString("snippet",
			mcp.Description("Short article summary")),
		mcp.WithString("source",
			mcp.Description("Where the article came from")),
		mcp.WithString("endpoint",
			mcp.Description("Exploration process websocket URL (default from config)")),
		mcp.WithNumber("linger_seconds",
			mcp.Description("How long to wait for the final analysis after the tree completes (default: 30)")),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Give up after this many seconds (default: 300)")),
	)
	s.AddTool(exploreTool, makeExploreArticleHandler(opts, database))

	// Register list_explorations tool
	listTool := mcp.NewTool("list_explorations",
		mcp.WithDescription("List past explorations, newest first, optionally filtered by title and date"),
		mcp.WithString("query",
			mcp.Description("Title words to match; also accepts after:, before:, limit: filters")),
		mcp.WithNumber("limit",
			mcp.Description("Max explorations to return (default: 20)")),
		mcp.WithString("after_date",
			mcp.Description("Only explorations started after this date ('2026-01-01', 'yesterday', '3 days ago')")),
		mcp.WithString("before_date",
			mcp.Description("Only explorations started before this date")),
	)
	s.AddTool(listTool, makeListExplorationsHandler(database))

	return s
}

// StartServer serves the tools over stdio until the client disconnects
func StartServer(opts Options) error {
	database, err := db.New(opts.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil && opts.Logger != nil {
			opts.Logger.Error("failed to close database", "error", closeErr)
		}
	}()

	return server.ServeStdio(NewServer(opts, database))
}

func decodeArgs(request mcp.CallToolRequest, v interface{}) error {
	argsBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(argsBytes, v)
}

func makeExploreArticleHandler(opts Options, database *db.DB) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ExploreArticleArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		article := models.ArticleData{
			Title:   args.Title,
			URL:     args.URL,
			Snippet: args.Snippet,
			Source:  args.Source,
		}
		if err := article.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		// Set defaults
		linger := 30 * time.Second
		if args.LingerSeconds > 0 {
			linger = time.Duration(args.LingerSeconds) * time.Second
		}
		timeout := 5 * time.Minute
		if args.TimeoutSeconds > 0 {
			timeout = time.Duration(args.TimeoutSeconds) * time.Second
		}

		tc := opts.Config.Transport(args.Endpoint)
		conn := transport.New(tc, opts.Logger)
		defer func() { _ = conn.Close() }()

		deps := session.Deps{Conn: conn, Logger: opts.Logger}
		if database != nil {
			deps.Recorder = database.Recorder(tc.URL)
		}
		controller := session.New(deps, article)

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		v, err := session.Watch(ctx, controller, session.WatchOptions{Linger: linger})
		if err != nil && v.Tree.IsPlaceholder() {
			return mcp.NewToolResultError(fmt.Sprintf("exploration failed: %v", err)), nil
		}

		result := ExplorationResult{
			Title:         article.Title,
			State:         v.State.String(),
			Status:        v.Status,
			AIProvider:    v.AIProvider,
			TotalNodes:    v.Tree.Count,
			StatusCounts:  make(map[string]int),
			Tree:          ansi.Strip(v.Text(0)),
			FinalAnalysis: v.FinalAnalysis,
		}
		for status, n := range v.Counts {
			result.StatusCounts[string(status)] = n
		}
		if err != nil {
			result.Error = err.Error()
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func makeListExplorationsHandler(database *db.DB) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if database == nil {
			return mcp.NewToolResultError("history is not available"), nil
		}

		var args ListExplorationsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		now := time.Now()
		filter, err := search.ParseQuery(args.Query, now)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.AfterDate != "" {
			if filter.After, err = search.ParseDate(args.AfterDate, now); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid after_date: %v", err)), nil
			}
		}
		if args.BeforeDate != "" {
			if filter.Before, err = search.ParseDate(args.BeforeDate, now); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid before_date: %v", err)), nil
			}
		}
		if args.Limit > 0 {
			filter.Limit = args.Limit
		}
		if filter.Limit == 0 {
			filter.Limit = 20
		}

		runs, err := database.ListExplorations(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list explorations: %v", err)), nil
		}

		// Convert core types to MCP types
		results := []ExplorationSummary{}
		for _, e := range runs {
			summary := ExplorationSummary{
				ID:               e.ID,
				Title:            e.Title,
				URL:              e.URL,
				StartedAt:        e.StartedAt.Format(time.RFC3339),
				TotalNodes:       e.TotalNodes,
				CompletedNodes:   e.CompletedNodes,
				ErrorNodes:       e.ErrorNodes,
				RateLimitedNodes: e.RateLimitedNodes,
				HasAnalysis:      e.HasAnalysis,
			}
			if e.FinishedAt != nil {
				summary.FinishedAt = e.FinishedAt.Format(time.RFC3339)
			}
			results = append(results, summary)
		}

		resultJSON, err := json.Marshal(map[string]interface{}{
			"explorations": results,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}
