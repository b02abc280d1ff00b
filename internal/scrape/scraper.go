package scrape

import "context"

// Result holds a fetched page ready for structuring.
type Result struct {
	Title   string
	Content string // markdown
	Source  string // which scraper served the request, e.g. "jina"
}

// Target describes what the chain should fetch. Video pages get a
// render-and-wait strategy since their text is injected client side.
type Target struct {
	URL     string
	IsVideo bool
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, target Target) (*Result, error)
	Name() string
}
