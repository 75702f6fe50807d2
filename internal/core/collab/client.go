// Package collab talks to the exploration host's HTTP collaborators: the
// article search backend and the trending-articles source.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neilberkman/linkscout/internal/core/models"
)

// DefaultTimeout bounds each collaborator request
const DefaultTimeout = 15 * time.Second

// MinQueryLength is the shortest query the search backend accepts
const MinQueryLength = 2

// ErrQueryTooShort is returned before any request is made
var ErrQueryTooShort = fmt.Errorf("search query must be at least %d characters", MinQueryLength)

// APIError is a failure reported by a collaborator in its response body
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// SearchResult is one article returned by the search backend
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Image   string `json:"image,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Article converts a result into the data a start_search request carries
func (r SearchResult) Article() models.ArticleData {
	return models.ArticleData{
		Title:   strings.TrimSpace(r.Title),
		URL:     r.URL,
		Snippet: r.Snippet,
		Image:   r.Image,
		Source:  r.Source,
	}
}

// SearchResponse is the search backend's answer
type SearchResponse struct {
	Success       bool           `json:"success"`
	Query         string         `json:"query,omitempty"`
	Results       []SearchResult `json:"results"`
	Count         int            `json:"count,omitempty"`
	UsingMockData bool           `json:"using_mock_data,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// TrendingArticle is one entry of the trending list
type TrendingArticle struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Extract   string `json:"extract,omitempty"`
}

// Article converts a trending entry into start_search data
func (a TrendingArticle) Article() models.ArticleData {
	return models.ArticleData{
		Title:   strings.TrimSpace(a.Title),
		Snippet: a.Extract,
		Image:   a.Thumbnail,
		Source:  "trending",
	}
}

// TrendingResponse is the trending source's answer
type TrendingResponse struct {
	Success  bool              `json:"success"`
	Articles []TrendingArticle `json:"articles"`
	Error    string            `json:"error,omitempty"`
}

// Client calls the collaborators under one base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. "http://127.0.0.1:5000")
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search asks the search backend for articles matching query
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 {
		limit = 10
	}

	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	var resp SearchResponse
	status, err := c.do(ctx, http.MethodPost, "/api/search", bytes.NewReader(body), &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || status != http.StatusOK {
		return nil, &APIError{Endpoint: "search", StatusCode: status, Message: orDefault(resp.Error, "search failed")}
	}
	return resp.Results, nil
}

// Trending fetches the current trending articles
func (c *Client) Trending(ctx context.Context) ([]TrendingArticle, error) {
	var resp TrendingResponse
	status, err := c.do(ctx, http.MethodGet, "/api/trending", nil, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || status != http.StatusOK {
		return nil, &APIError{Endpoint: "trending", StatusCode: status, Message: orDefault(resp.Error, "failed to load articles")}
	}
	return resp.Articles, nil
}

// do sends the request and decodes the JSON body into out. Error statuses
// still carry a JSON body, so the status is returned instead of treated as
// a transport failure.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, &APIError{Endpoint: strings.TrimPrefix(path, "/api/"), StatusCode: resp.StatusCode, Message: resp.Status}
		}
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// IsAPIError reports whether err came from a collaborator's error response
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
