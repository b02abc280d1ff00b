// Package structure converts raw recipe text into a CanonicalRecipe using a
// structured-parse provider, and generates recipe variations.
package structure

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/resilience"
	"github.com/plateful/plateful/pkg/anthropic"
)

// ErrUnparseable marks provider output that could not be recovered into a
// recipe document even after cleanup.
var ErrUnparseable = eris.New("structure: provider output not parseable as a recipe")

const structureSystem = `You convert raw recipe text into structured JSON. Return only a JSON object matching this shape:
{
  "title": "string",
  "description": "string or omit",
  "ingredient_groups": [{"heading": "string or omit", "ingredients": [{"name": "string", "amount": number or null, "unit": "string or null", "preparation": "string or null", "substitutions": ["string"] or null}]}],
  "instructions": [{"text": "string", "note": "string under 100 chars or omit"}],
  "yield": "string or omit",
  "prep_time_minutes": number or omit,
  "cook_time_minutes": number or omit,
  "total_time_minutes": number or omit
}
Use null for unknown amounts. Never invent ingredients or steps that are not in the source text.`

const structurePrompt = `Convert this recipe text to the JSON shape described in the system prompt:

%TEXT%`

// Parser turns raw recipe text into CanonicalRecipe documents.
type Parser struct {
	client    anthropic.Client
	modelName string
	policy    resilience.Policy
}

// NewParser creates a Parser backed by the structured-parse provider.
func NewParser(client anthropic.Client, modelName string, policy resilience.Policy) *Parser {
	return &Parser{client: client, modelName: modelName, policy: policy}
}

// Parse converts raw recipe text into a CanonicalRecipe. Provider output
// wrapped in markdown fences or surrounding prose is recovered before
// interpretation; unrecoverable output returns ErrUnparseable.
func (p *Parser) Parse(ctx context.Context, rawText string) (*model.CanonicalRecipe, model.Usage, error) {
	var usage model.Usage

	prompt := strings.Replace(structurePrompt, "%TEXT%", rawText, 1)

	resp, err := resilience.Do(ctx, p.policy, "structure/parse", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		r, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.modelName,
			MaxTokens: 4096,
			System:    structureSystem,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if r != nil {
			usage.Add(model.Usage{InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens})
		}
		return r, err
	})
	if err != nil {
		return nil, usage, eris.Wrap(err, "structure: parse call")
	}

	recipe, err := decodeRecipe(resp.Text)
	if err != nil {
		zap.L().Warn("structure: failed to decode provider output",
			zap.Int("output_len", len(resp.Text)),
			zap.Error(err),
		)
		return nil, usage, err
	}

	ensureInstructionIDs(recipe)
	return recipe, usage, nil
}

// decodeRecipe recovers and unmarshals a recipe JSON document from provider
// output that may be wrapped in markdown fences or surrounding prose.
func decodeRecipe(text string) (*model.CanonicalRecipe, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, ErrUnparseable
	}

	var recipe model.CanonicalRecipe
	if err := json.Unmarshal([]byte(cleaned), &recipe); err != nil {
		return nil, eris.Wrap(ErrUnparseable, err.Error())
	}
	return &recipe, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	} else {
		return ""
	}

	return strings.TrimSpace(text)
}

// ensureInstructionIDs assigns stable ids to steps the provider returned
// without one. Ids are referenced by partial patches and client checklists.
func ensureInstructionIDs(r *model.CanonicalRecipe) {
	for i := range r.Instructions {
		if r.Instructions[i].ID == "" {
			r.Instructions[i].ID = uuid.New().String()
		}
	}
}
