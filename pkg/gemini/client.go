// Package gemini wraps the Google genai SDK for the two capabilities the
// pipeline takes from it: text embeddings and fallback image extraction.
package gemini

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

const (
	defaultVisionModel = "gemini-2.0-flash"
	defaultEmbedModel  = "gemini-embedding-001"
)

// Client defines the Gemini operations used by the pipeline.
type Client interface {
	// EmbedText returns an embedding vector for the given text.
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// GenerateFromImages runs a prompt against one or more images and
	// returns the generated text plus token usage.
	GenerateFromImages(ctx context.Context, prompt string, images []ImageInput) (*GenerateResponse, error)
}

// ImageInput is a raw image handed to the vision model.
type ImageInput struct {
	MIMEType string
	Data     []byte
}

// GenerateResponse holds generated text and token usage.
type GenerateResponse struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Config tunes the Gemini client.
type Config struct {
	APIKey         string
	VisionModel    string
	EmbedModel     string
	EmbedDimension int
}

type genaiClient struct {
	client      *genai.Client
	visionModel string
	embedModel  string
	embedDim    int
}

// NewClient creates a Gemini client backed by the genai SDK.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("gemini: api key required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}

	c := &genaiClient{
		client:      client,
		visionModel: cfg.VisionModel,
		embedModel:  cfg.EmbedModel,
		embedDim:    cfg.EmbedDimension,
	}
	if c.visionModel == "" {
		c.visionModel = defaultVisionModel
	}
	if c.embedModel == "" {
		c.embedModel = defaultEmbedModel
	}
	if c.embedDim <= 0 {
		c.embedDim = 768
	}
	return c, nil
}

func (c *genaiClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, eris.New("gemini: empty text for embedding")
	}

	dim := int32(c.embedDim)
	result, err := c.client.Models.EmbedContent(ctx, c.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: embed content")
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, eris.New("gemini: no embedding returned")
	}
	return result.Embeddings[0].Values, nil
}

func (c *genaiClient) GenerateFromImages(ctx context.Context, prompt string, images []ImageInput) (*GenerateResponse, error) {
	if len(images) == 0 {
		return nil, eris.New("gemini: no images provided")
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	resp, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &GenerateResponse{}
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					out.Text += part.Text
				}
			}
			if out.Text != "" {
				break
			}
		}
		if resp.UsageMetadata != nil {
			out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	if out.Text == "" {
		return nil, eris.New("gemini: no text generated")
	}
	return out, nil
}
