// Package vision extracts raw recipe text from photographed pages using a
// vision-capable provider with a fallback.
package vision

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/resilience"
)

// minTextLength: provider output shorter than this is treated as empty
// (a blank page or a photo with no legible recipe).
const minTextLength = 50

// Page is one photographed recipe page, in reading order.
type Page struct {
	MIMEType string
	Data     []byte
}

// Extraction is the result of reading recipe text off images.
type Extraction struct {
	Text     string
	ServedBy string // provider identity, diagnostics only
	Fallback bool
	Usage    model.Usage
}

// Provider is a single vision-capable text extractor.
type Provider interface {
	ExtractText(ctx context.Context, pages []Page) (string, model.Usage, error)
	Name() string
}

// ErrEmptyOutput marks provider output that was technically valid but too
// short to be a recipe.
var ErrEmptyOutput = eris.New("vision: extracted text too short")

// Extractor runs a primary provider and transparently retries with the
// fallback on failure or empty output.
type Extractor struct {
	primary  Provider
	fallback Provider
	policy   resilience.Policy
}

// NewExtractor creates an Extractor. The fallback may be nil, in which case
// primary failures are terminal.
func NewExtractor(primary, fallback Provider, policy resilience.Policy) *Extractor {
	return &Extractor{primary: primary, fallback: fallback, policy: policy}
}

// Extract reads recipe text from the pages. The returned Extraction records
// which provider actually served the request; callers surface that only as
// a diagnostic, never as part of the success contract.
func (e *Extractor) Extract(ctx context.Context, pages []Page) (*Extraction, error) {
	if len(pages) == 0 {
		return nil, eris.New("vision: no pages provided")
	}

	text, usage, err := e.attempt(ctx, e.primary, pages)
	if err == nil {
		return &Extraction{Text: text, ServedBy: e.primary.Name(), Usage: usage}, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if e.fallback == nil {
		return nil, err
	}

	zap.L().Warn("vision: primary provider failed, using fallback",
		zap.String("primary", e.primary.Name()),
		zap.String("fallback", e.fallback.Name()),
		zap.Error(err),
	)

	fbText, fbUsage, fbErr := e.attempt(ctx, e.fallback, pages)
	usage.Add(fbUsage)
	if fbErr != nil {
		// Report the fallback's error; the primary failure is already logged.
		return nil, eris.Wrap(fbErr, "vision: fallback provider failed")
	}

	return &Extraction{Text: fbText, ServedBy: e.fallback.Name(), Fallback: true, Usage: usage}, nil
}

func (e *Extractor) attempt(ctx context.Context, p Provider, pages []Page) (string, model.Usage, error) {
	var usage model.Usage

	text, err := resilience.Do(ctx, e.policy, "vision/"+p.Name(), func(ctx context.Context) (string, error) {
		out, u, err := p.ExtractText(ctx, pages)
		usage.Add(u)
		if err != nil {
			return "", err
		}
		if len(strings.TrimSpace(out)) < minTextLength {
			return "", ErrEmptyOutput
		}
		return out, nil
	})
	return text, usage, err
}
