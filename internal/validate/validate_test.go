package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/model"
)

func validCandidate() *model.CanonicalRecipe {
	return &model.CanonicalRecipe{
		Title: "Beef Stew",
		IngredientGroups: []model.IngredientGroup{{
			Ingredients: []model.Ingredient{{Name: "beef chuck"}},
		}},
		Instructions: []model.Instruction{{ID: "s1", Text: "Brown the beef."}},
		Yield:        "6 servings",
		CookTimeMinutes: 180,
		ImageURL:     "https://example.com/stew.jpg",
	}
}

func TestRecipe_Valid(t *testing.T) {
	t.Parallel()

	res := Recipe(validCandidate())
	assert.True(t, res.OK)
	assert.Empty(t, res.Reasons)
	assert.Empty(t, res.Warnings)
}

func TestRecipe_NilCandidate(t *testing.T) {
	t.Parallel()

	res := Recipe(nil)
	assert.False(t, res.OK)
	require.Len(t, res.Reasons, 1)
}

func TestRecipe_HardFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.CanonicalRecipe)
		reason string
	}{
		{"empty title", func(r *model.CanonicalRecipe) { r.Title = "  " }, "no title"},
		{"zero ingredients", func(r *model.CanonicalRecipe) { r.IngredientGroups = nil }, "no ingredients"},
		{"zero instructions", func(r *model.CanonicalRecipe) { r.Instructions = nil }, "no instructions"},
		{"step without id", func(r *model.CanonicalRecipe) { r.Instructions[0].ID = "" }, "has no id"},
		{"step without text", func(r *model.CanonicalRecipe) { r.Instructions[0].Text = "" }, "has no text"},
		{
			"overlong note",
			func(r *model.CanonicalRecipe) { r.Instructions[0].Note = strings.Repeat("x", 101) },
			"exceeds 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validCandidate()
			tt.mutate(c)
			res := Recipe(c)
			assert.False(t, res.OK)
			require.NotEmpty(t, res.Reasons)
			assert.Contains(t, strings.Join(res.Reasons, "; "), tt.reason)
		})
	}
}

func TestRecipe_ZeroIngredientsAlwaysFails(t *testing.T) {
	t.Parallel()

	// Regardless of every other field being rich and complete.
	c := validCandidate()
	c.IngredientGroups = []model.IngredientGroup{{Heading: "everything", Ingredients: nil}}
	c.Yield = "8 servings"
	c.Description = "An elaborate dish."

	res := Recipe(c)
	assert.False(t, res.OK)
}

func TestRecipe_SoftWarnings(t *testing.T) {
	t.Parallel()

	c := validCandidate()
	c.Yield = ""
	c.CookTimeMinutes = 0
	c.ImageURL = ""

	res := Recipe(c)
	assert.True(t, res.OK)
	assert.Len(t, res.Warnings, 3)
}

func TestInstructionSteps(t *testing.T) {
	t.Parallel()

	assert.Error(t, InstructionSteps(nil))
	assert.Error(t, InstructionSteps([]model.Instruction{{ID: "", Text: "stir"}}))
	assert.Error(t, InstructionSteps([]model.Instruction{{ID: "s1", Text: " "}}))
	assert.Error(t, InstructionSteps([]model.Instruction{{ID: "s1", Text: "stir", Note: strings.Repeat("n", 101)}}))
	assert.NoError(t, InstructionSteps([]model.Instruction{{ID: "s1", Text: "stir", Note: "gently"}}))
}
