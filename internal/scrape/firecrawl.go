package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/pkg/firecrawl"
)

// videoWaitMillis gives script-heavy video pages time to render their
// description before the scrape snapshot is taken.
const videoWaitMillis = 3000

// FirecrawlScraper fetches pages through Firecrawl. Fallback strategy:
// heavier, handles pages that block reader proxies, and can wait for
// client-side rendering on video platforms.
type FirecrawlScraper struct {
	client firecrawl.Client
}

// NewFirecrawlScraper creates a Firecrawl-backed scraper.
func NewFirecrawlScraper(client firecrawl.Client) *FirecrawlScraper {
	return &FirecrawlScraper{client: client}
}

func (s *FirecrawlScraper) Name() string { return "firecrawl" }

func (s *FirecrawlScraper) Scrape(ctx context.Context, target Target) (*Result, error) {
	req := firecrawl.ScrapeRequest{URL: target.URL}
	if target.IsVideo {
		req.WaitFor = videoWaitMillis
	}

	resp, err := s.client.Scrape(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: firecrawl %s", target.URL)
	}
	return &Result{
		Title:   resp.Data.Metadata.Title,
		Content: resp.Data.Markdown,
	}, nil
}
