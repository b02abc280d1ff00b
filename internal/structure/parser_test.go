package structure

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/resilience"
	"github.com/plateful/plateful/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func testParser(client anthropic.Client) *Parser {
	return NewParser(client, "claude-haiku-4-5-20251001", resilience.Policy{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	})
}

const validRecipeJSON = `{
  "title": "Garlic Butter Chicken",
  "ingredient_groups": [
    {"ingredients": [
      {"name": "chicken thighs", "amount": 4, "unit": "piece"},
      {"name": "butter", "amount": 3, "unit": "tbsp", "substitutions": ["ghee"]}
    ]}
  ],
  "instructions": [
    {"text": "Season the chicken."},
    {"text": "Sear in butter until golden.", "note": "Skin side down first."}
  ],
  "yield": "4 servings"
}`

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Text:  text,
		Usage: anthropic.TokenUsage{InputTokens: 200, OutputTokens: 150},
	}
}

func TestParse_CleanJSON(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(validRecipeJSON), nil)

	recipe, usage, err := testParser(client).Parse(context.Background(), "some raw recipe text")
	require.NoError(t, err)
	assert.Equal(t, "Garlic Butter Chicken", recipe.Title)
	assert.Equal(t, 2, recipe.IngredientCount())
	assert.Len(t, recipe.Instructions, 2)
	assert.Equal(t, int64(200), usage.InputTokens)

	// Steps get stable ids assigned when the provider omits them.
	for _, step := range recipe.Instructions {
		assert.NotEmpty(t, step.ID)
	}
}

func TestParse_RecoversFencedJSON(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	fenced := "```json\n" + validRecipeJSON + "\n```"
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(fenced), nil)

	recipe, _, err := testParser(client).Parse(context.Background(), "raw text")
	require.NoError(t, err)
	assert.Equal(t, "Garlic Butter Chicken", recipe.Title)
}

func TestParse_RecoversJSONWithProse(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	wrapped := "Here is the structured recipe:\n" + validRecipeJSON + "\nLet me know if you need changes."
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(wrapped), nil)

	recipe, _, err := testParser(client).Parse(context.Background(), "raw text")
	require.NoError(t, err)
	assert.Equal(t, "Garlic Butter Chicken", recipe.Title)
}

func TestParse_UnrecoverableOutput(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not find a recipe in that text."), nil)

	_, _, err := testParser(client).Parse(context.Background(), "raw text")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnparseable))
}

func TestParse_ProviderError(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, eris.New("api down"))

	_, _, err := testParser(client).Parse(context.Background(), "raw text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse call")
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Sure! {"a":1} Done.`, `{"a":1}`},
		{"no object", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}
