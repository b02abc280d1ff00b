// Package firecrawl provides a client for the Firecrawl scrape API, used as
// the fallback page-fetch strategy when Jina Reader fails.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Firecrawl operations used by the scrape chain.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
}

// ScrapeRequest configures a single-page scrape.
type ScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats,omitempty"`
	// WaitFor delays scraping in milliseconds, for script-heavy pages
	// (video platforms render descriptions client side).
	WaitFor int `json:"waitFor,omitempty"`
}

// ScrapeResponse is the parsed scrape result.
type ScrapeResponse struct {
	Success bool     `json:"success"`
	Data    PageData `json:"data"`
	Error   string   `json:"error,omitempty"`
}

// PageData holds scraped page content.
type PageData struct {
	Markdown string   `json:"markdown"`
	HTML     string   `json:"html,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Metadata holds page metadata from the scrape.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// Option configures the Firecrawl client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Firecrawl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.firecrawl.dev/v2",
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Scrape(ctx context.Context, scrapeReq ScrapeRequest) (*ScrapeResponse, error) {
	if len(scrapeReq.Formats) == 0 {
		scrapeReq.Formats = []string{"markdown"}
	}

	payload, err := json.Marshal(scrapeReq)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/scrape", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "firecrawl: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("firecrawl: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ScrapeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "firecrawl: unmarshal response")
	}
	if !result.Success {
		return nil, eris.Errorf("firecrawl: scrape failed: %s", result.Error)
	}

	return &result, nil
}
