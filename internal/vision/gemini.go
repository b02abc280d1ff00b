package vision

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/pkg/gemini"
)

// GeminiProvider extracts recipe text from images using Gemini vision.
// Used as the fallback when the primary provider fails.
type GeminiProvider struct {
	client gemini.Client
}

// NewGeminiProvider creates the fallback vision provider.
func NewGeminiProvider(client gemini.Client) *GeminiProvider {
	return &GeminiProvider{client: client}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) ExtractText(ctx context.Context, pages []Page) (string, model.Usage, error) {
	images := make([]gemini.ImageInput, len(pages))
	for i, pg := range pages {
		images[i] = gemini.ImageInput{MIMEType: pg.MIMEType, Data: pg.Data}
	}

	resp, err := p.client.GenerateFromImages(ctx, extractPrompt, images)
	if err != nil {
		return "", model.Usage{}, eris.Wrap(err, "vision: gemini extract")
	}

	usage := model.Usage{
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	return resp.Text, usage, nil
}
