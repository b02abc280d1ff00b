package structure

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/resilience"
	"github.com/plateful/plateful/pkg/anthropic"
)

// ErrVariationRejected marks a generated variation that failed its domain
// post-check (e.g. meat surviving a vegetarian conversion).
var ErrVariationRejected = eris.New("structure: variation failed post-check")

var variationDirectives = map[model.VariationKind]string{
	model.VariationVegetarian: "Convert this recipe to a vegetarian version. Replace all meat, poultry, fish, seafood, and meat-based stocks or sauces with vegetarian alternatives. Keep everything else unchanged.",
	model.VariationGlutenFree: "Convert this recipe to a gluten-free version. Replace wheat flour, pasta, bread, soy sauce, and other gluten-containing ingredients with gluten-free alternatives. Keep everything else unchanged.",
	model.VariationLowerFat:   "Convert this recipe to a lower-fat version. Reduce or substitute butter, cream, oils, and fatty cuts while keeping the dish recognizable. Keep everything else unchanged.",
}

// meatKeywords are ingredient words that must not survive a vegetarian
// conversion.
var meatKeywords = []string{
	"chicken", "beef", "pork", "lamb", "veal", "turkey", "duck",
	"bacon", "ham", "prosciutto", "sausage", "chorizo", "salami",
	"anchovy", "anchovies", "fish", "salmon", "tuna", "cod", "shrimp",
	"prawn", "crab", "lobster", "clam", "mussel", "oyster", "gelatin",
	"lard", "pancetta",
}

// Variation generates a modified version of an existing recipe. The
// provider re-parses the full recipe under a variation directive; then
// substitution metadata is merged so ingredients the variation did not
// touch keep the original's suggested substitutions.
func (p *Parser) Variation(ctx context.Context, original *model.CanonicalRecipe, kind model.VariationKind) (*model.CanonicalRecipe, model.Usage, error) {
	var usage model.Usage

	directive, ok := variationDirectives[kind]
	if !ok {
		return nil, usage, eris.Errorf("structure: unknown variation %q", kind)
	}

	originalJSON, err := json.Marshal(original)
	if err != nil {
		return nil, usage, eris.Wrap(err, "structure: marshal original")
	}

	prompt := directive + "\n\nRecipe JSON:\n" + string(originalJSON) +
		"\n\nReturn the converted recipe in the same JSON shape."

	resp, err := resilience.Do(ctx, p.policy, "structure/variation", func(ctx context.Context) (*anthropic.MessageResponse, error) {
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
		return nil, usage, eris.Wrap(err, "structure: variation call")
	}

	varied, err := decodeRecipe(resp.Text)
	if err != nil {
		return nil, usage, err
	}
	ensureInstructionIDs(varied)

	MergeSubstitutions(original, varied)

	if kind == model.VariationVegetarian {
		if offender := FindMeatIngredient(varied); offender != "" {
			zap.L().Warn("structure: vegetarian variation still contains meat",
				zap.String("ingredient", offender),
			)
			return nil, usage, eris.Wrapf(ErrVariationRejected, "ingredient %q is not vegetarian", offender)
		}
	}

	return varied, usage, nil
}

// MergeSubstitutions carries the original's substitution suggestions onto
// variation ingredients the provider did not actually change. Only changed
// ingredients (no matching name in the original) keep provider-supplied
// substitutions.
func MergeSubstitutions(original, varied *model.CanonicalRecipe) {
	origByName := map[string]model.Ingredient{}
	for _, ing := range original.AllIngredients() {
		origByName[normalizeName(ing.Name)] = ing
	}

	for gi := range varied.IngredientGroups {
		for ii := range varied.IngredientGroups[gi].Ingredients {
			ing := &varied.IngredientGroups[gi].Ingredients[ii]
			orig, unchanged := origByName[normalizeName(ing.Name)]
			if unchanged {
				ing.Substitutions = orig.Substitutions
			}
		}
	}
}

// FindMeatIngredient returns the first ingredient name containing a meat or
// fish keyword, or "" if none.
func FindMeatIngredient(r *model.CanonicalRecipe) string {
	for _, ing := range r.AllIngredients() {
		name := strings.ToLower(ing.Name)
		for _, kw := range meatKeywords {
			if containsWord(name, kw) {
				return ing.Name
			}
		}
	}
	return ""
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// containsWord matches kw as a whole word inside name, so "hamburger bun"
// does not match "ham" by substring accident alone, while "chicken stock"
// matches "chicken".
func containsWord(name, kw string) bool {
	for _, w := range strings.FieldsFunc(name, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if w == kw {
			return true
		}
	}
	return false
}
