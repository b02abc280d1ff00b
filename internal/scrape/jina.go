package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/pkg/jina"
)

// JinaScraper fetches pages through Jina AI Reader. Primary strategy:
// cheap, fast, returns clean markdown for article-style recipe pages.
type JinaScraper struct {
	client jina.Client
}

// NewJinaScraper creates a Jina-backed scraper.
func NewJinaScraper(client jina.Client) *JinaScraper {
	return &JinaScraper{client: client}
}

func (s *JinaScraper) Name() string { return "jina" }

func (s *JinaScraper) Scrape(ctx context.Context, target Target) (*Result, error) {
	resp, err := s.client.Read(ctx, target.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: jina read %s", target.URL)
	}
	return &Result{
		Title:   resp.Data.Title,
		Content: resp.Data.Content,
	}, nil
}
