package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultBaseURL = "https://api.tavily.com"

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// RateLimitRetries bounds how often a 429 is waited out. Other failures
	// are returned to the caller immediately.
	RateLimitRetries int
}

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey  string
	baseURL string
	client  *retryablehttp.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(cfg TavilyConfig) *Tavily {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: timeout}
	client.Logger = slog.Default()
	client.RetryMax = cfg.RateLimitRetries
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 30 * time.Second
	client.CheckRetry = retryRateLimited
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Tavily{apiKey: cfg.APIKey, baseURL: baseURL, client: client}
}

// retryRateLimited only waits out 429s. Provider and network errors surface
// as tool errors so the model decides what to do next.
func retryRateLimited(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

type tavilyRequest struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("tavily: query is empty")
	}

	depth := opts.Depth
	if depth == "" {
		depth = DepthBasic
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:       query,
		APIKey:      t.apiKey,
		SearchDepth: depth,
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", payload)
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
		if len(results) >= maxResults {
			break
		}
	}

	slog.DebugContext(ctx, "tavily search completed",
		"query", query,
		"depth", depth,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}
