package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kenzic/unhinged-side-quest-research-agent/common/llm"
	"github.com/kenzic/unhinged-side-quest-research-agent/internal/search"
)

// ResultsFunc observes a successful webSearch call, e.g. to cite its
// results as sources.
type ResultsFunc func(ctx context.Context, call llm.ToolCall, args WebSearchArgs, results []search.Result)

// SearchTool exposes a search provider with fixed depth and result count.
type SearchTool struct {
	provider search.Provider
	opts     search.Options
}

func NewSearchTool(provider search.Provider, opts search.Options) *SearchTool {
	return &SearchTool{provider: provider, opts: opts}
}

// WebSearchArgs are the arguments of the webSearch tool.
type WebSearchArgs struct {
	Query  string `json:"query" jsonschema:"required,description=The search query" validate:"required,notblank"`
	Reason string `json:"reason,omitempty" jsonschema:"description=Why you are running this search (shown in the search log)"`
}

type searchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Search runs query with the tool's fixed options.
func (t *SearchTool) Search(ctx context.Context, query string) ([]search.Result, error) {
	results, err := t.provider.Search(ctx, query, t.opts)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// encodeResults renders results as a JSON list of {url, title, content}.
func encodeResults(results []search.Result) (string, error) {
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{URL: r.URL, Title: r.Title, Content: r.Content}
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}
	return string(data), nil
}

// register adds webSearch to ts. observe may be nil.
func (t *SearchTool) register(ts *Toolset, observe ResultsFunc) {
	AddTool(ts, toolWebSearch,
		"Search the web. Returns a JSON list of results with url, title and content.",
		func(ctx context.Context, call llm.ToolCall, args WebSearchArgs) (string, error) {
			results, err := t.Search(ctx, args.Query)
			if err != nil {
				return "", err
			}
			if observe != nil {
				observe(ctx, call, args, results)
			}
			return encodeResults(results)
		})
}
