package search

import "context"

// Search depths understood by Tavily-compatible providers.
const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"
)

// Result is one ranked hit. Results are never persisted; they travel only
// through tool output.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Options are fixed per caller: the chat agent and the tangent agent each
// search with their own depth and result cap.
type Options struct {
	Depth      string
	MaxResults int
}

// Provider runs a web search.
type Provider interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}
