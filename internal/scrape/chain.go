// Package scrape fetches recipe pages through an ordered chain of fetch
// strategies, returning the first usable result.
package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// minContentLength: pages shorter than this are treated as a failed fetch
// (consent walls, empty shells) so the next strategy gets a chance.
const minContentLength = 80

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order; the first result
// with usable content wins.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Scrape tries each scraper in order for the target. Returns the first
// usable result, or an error after all strategies fail.
func (c *Chain) Scrape(ctx context.Context, target Target) (*Result, error) {
	if len(c.scrapers) == 0 {
		return nil, eris.New("scrape: no scrapers configured")
	}

	var lastErr error
	for _, s := range c.scrapers {
		result, err := s.Scrape(ctx, target)
		if err == nil && result != nil && len(strings.TrimSpace(result.Content)) >= minContentLength {
			result.Source = s.Name()
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: canceled")
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = eris.Errorf("scrape: %s returned too little content for %s", s.Name(), target.URL)
		}
		zap.L().Debug("scrape: strategy failed, trying next",
			zap.String("scraper", s.Name()),
			zap.String("url", target.URL),
			zap.Error(lastErr),
		)
	}

	return nil, eris.Wrap(lastErr, "scrape: all strategies failed")
}
