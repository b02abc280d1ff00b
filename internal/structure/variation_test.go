package structure

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/model"
)

func originalRecipe() *model.CanonicalRecipe {
	amount := 2.0
	return &model.CanonicalRecipe{
		Title: "Chicken Risotto",
		IngredientGroups: []model.IngredientGroup{{
			Ingredients: []model.Ingredient{
				{Name: "arborio rice", Amount: &amount, Unit: "cup", Substitutions: []string{"carnaroli rice"}},
				{Name: "chicken stock", Amount: &amount, Unit: "cup"},
				{Name: "parmesan", Substitutions: []string{"pecorino"}},
			},
		}},
		Instructions: []model.Instruction{{ID: "s1", Text: "Toast the rice."}},
	}
}

func TestVariation_Vegetarian_Succeeds(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"title": "Vegetarian Risotto",
		"ingredient_groups": [{"ingredients": [
			{"name": "arborio rice", "amount": 2, "unit": "cup"},
			{"name": "vegetable stock", "amount": 2, "unit": "cup", "substitutions": ["mushroom stock"]},
			{"name": "parmesan"}
		]}],
		"instructions": [{"text": "Toast the rice."}]
	}`), nil)

	varied, _, err := testParser(client).Variation(context.Background(), originalRecipe(), model.VariationVegetarian)
	require.NoError(t, err)

	ings := varied.AllIngredients()
	require.Len(t, ings, 3)

	// Unchanged ingredients keep the original's substitutions.
	assert.Equal(t, []string{"carnaroli rice"}, ings[0].Substitutions)
	assert.Equal(t, []string{"pecorino"}, ings[2].Substitutions)

	// Changed ingredients keep provider-supplied substitutions.
	assert.Equal(t, "vegetable stock", ings[1].Name)
	assert.Equal(t, []string{"mushroom stock"}, ings[1].Substitutions)
}

func TestVariation_Vegetarian_RejectsSurvivingMeat(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"title": "Vegetarian Risotto",
		"ingredient_groups": [{"ingredients": [
			{"name": "arborio rice"},
			{"name": "chicken stock"}
		]}],
		"instructions": [{"text": "Toast the rice."}]
	}`), nil)

	_, _, err := testParser(client).Variation(context.Background(), originalRecipe(), model.VariationVegetarian)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrVariationRejected))
	assert.Contains(t, err.Error(), "chicken stock")
}

func TestVariation_UnknownKind(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	_, _, err := testParser(client).Variation(context.Background(), originalRecipe(), model.VariationKind("keto"))
	require.Error(t, err)
	client.AssertNotCalled(t, "CreateMessage")
}

func TestFindMeatIngredient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ingredient string
		want       bool
	}{
		{"plain meat", "chicken breast", true},
		{"stock", "chicken stock", true},
		{"fish", "salmon fillet", true},
		{"case insensitive", "Smoked BACON", true},
		{"vegetable", "vegetable stock", false},
		{"no substring false positive", "hamburger buns", false},
		{"mushroom", "oyster mushrooms", true}, // conservative: "oyster" matches
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &model.CanonicalRecipe{
				IngredientGroups: []model.IngredientGroup{{
					Ingredients: []model.Ingredient{{Name: tt.ingredient}},
				}},
			}
			got := FindMeatIngredient(r)
			if tt.want {
				assert.NotEmpty(t, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestMergeSubstitutions_NameNormalization(t *testing.T) {
	t.Parallel()

	orig := &model.CanonicalRecipe{
		IngredientGroups: []model.IngredientGroup{{
			Ingredients: []model.Ingredient{{Name: "Olive  Oil", Substitutions: []string{"avocado oil"}}},
		}},
	}
	varied := &model.CanonicalRecipe{
		IngredientGroups: []model.IngredientGroup{{
			Ingredients: []model.Ingredient{{Name: "olive oil", Substitutions: []string{"should be replaced"}}},
		}},
	}

	MergeSubstitutions(orig, varied)
	assert.Equal(t, []string{"avocado oil"}, varied.IngredientGroups[0].Ingredients[0].Substitutions)
}
