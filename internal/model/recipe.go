package model

import "strings"

// CanonicalRecipe is the structured, validated recipe document produced by
// the ingestion pipeline. The embedded ID always mirrors the id of the cache
// row that stores it; the persistence layer re-forces it after every write.
type CanonicalRecipe struct {
	ID               string            `json:"id,omitempty"`
	Title            string            `json:"title" validate:"required,min=1"`
	Description      string            `json:"description,omitempty"`
	IngredientGroups []IngredientGroup `json:"ingredient_groups" validate:"required,min=1,dive"`
	Instructions     []Instruction     `json:"instructions" validate:"required,min=1,dive"`
	Yield            string            `json:"yield,omitempty"`
	PrepTimeMinutes  int               `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes  int               `json:"cook_time_minutes,omitempty"`
	TotalTimeMinutes int               `json:"total_time_minutes,omitempty"`
	ImageURL         string            `json:"image_url,omitempty"`
	ThumbnailURL     string            `json:"thumbnail_url,omitempty"`
}

// IngredientGroup is an ordered block of ingredients under an optional
// heading (e.g. "For the sauce").
type IngredientGroup struct {
	Heading     string       `json:"heading,omitempty"`
	Ingredients []Ingredient `json:"ingredients" validate:"dive"`
}

// Ingredient is a single ingredient line.
type Ingredient struct {
	Name          string   `json:"name" validate:"required"`
	Amount        *float64 `json:"amount,omitempty"`
	Unit          string   `json:"unit,omitempty"`
	Preparation   string   `json:"preparation,omitempty"`
	Substitutions []string `json:"substitutions,omitempty"`
}

// Instruction is one ordered step. The ID is stable across edits so that
// partial patches and client-side checklist state can reference it.
type Instruction struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
	Note string `json:"note,omitempty" validate:"max=100"`
}

// IngredientCount returns the total number of ingredients across groups.
func (r *CanonicalRecipe) IngredientCount() int {
	n := 0
	for _, g := range r.IngredientGroups {
		n += len(g.Ingredients)
	}
	return n
}

// AllIngredients returns every ingredient across groups in order.
func (r *CanonicalRecipe) AllIngredients() []Ingredient {
	out := make([]Ingredient, 0, r.IngredientCount())
	for _, g := range r.IngredientGroups {
		out = append(out, g.Ingredients...)
	}
	return out
}

// EmbeddingText flattens the recipe into the text used for similarity
// embeddings: title, then ingredient names in order. Instruction prose is
// deliberately excluded so that rewordings of the same dish still converge.
func (r *CanonicalRecipe) EmbeddingText() string {
	parts := make([]string, 0, 1+r.IngredientCount())
	parts = append(parts, r.Title)
	for _, ing := range r.AllIngredients() {
		if ing.Name != "" {
			parts = append(parts, ing.Name)
		}
	}
	return strings.Join(parts, "\n")
}

// VariationKind names a supported recipe variation directive.
type VariationKind string

const (
	VariationVegetarian VariationKind = "vegetarian"
	VariationGlutenFree VariationKind = "gluten_free"
	VariationLowerFat   VariationKind = "lower_fat"
)

// KnownVariation reports whether k is a supported variation directive.
func KnownVariation(k VariationKind) bool {
	switch k {
	case VariationVegetarian, VariationGlutenFree, VariationLowerFat:
		return true
	}
	return false
}
