package vision

import (
	"context"
	"encoding/base64"

	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/pkg/anthropic"
)

const extractPrompt = `These images are photographed pages of a recipe, in page order.

Transcribe the complete recipe text exactly as written: title, ingredient list (with amounts and units), and numbered steps. Preserve ingredient group headings. Do not summarize, do not invent missing amounts, do not add commentary. Output plain text only.`

// ClaudeProvider extracts recipe text from images using Claude vision.
type ClaudeProvider struct {
	client    anthropic.Client
	modelName string
}

// NewClaudeProvider creates the primary vision provider.
func NewClaudeProvider(client anthropic.Client, modelName string) *ClaudeProvider {
	return &ClaudeProvider{client: client, modelName: modelName}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) ExtractText(ctx context.Context, pages []Page) (string, model.Usage, error) {
	images := make([]anthropic.ImageAttachment, len(pages))
	for i, pg := range pages {
		images[i] = anthropic.ImageAttachment{
			MediaType: pg.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(pg.Data),
		}
	}

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.modelName,
		MaxTokens: 4096,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: extractPrompt,
			Images:  images,
		}},
	})
	if err != nil {
		return "", model.Usage{}, eris.Wrap(err, "vision: claude extract")
	}

	usage := model.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return resp.Text, usage, nil
}
