// Package validate gates structured extraction output before persistence.
package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
)

// maxNoteLength bounds per-step notes.
const maxNoteLength = 100

// Result is the validator verdict. Reasons block persistence; Warnings are
// logged only.
type Result struct {
	OK       bool     `json:"ok"`
	Reasons  []string `json:"reasons,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Recipe checks a candidate CanonicalRecipe. Hard failures: nil candidate,
// missing title, zero ingredients, zero instructions, malformed steps.
// Missing optional fields (yield, timing, image) are soft warnings.
func Recipe(candidate *model.CanonicalRecipe) Result {
	if candidate == nil {
		return Result{OK: false, Reasons: []string{"no recipe was produced"}}
	}

	var reasons []string

	if strings.TrimSpace(candidate.Title) == "" {
		reasons = append(reasons, "recipe has no title")
	}
	if candidate.IngredientCount() < 1 {
		reasons = append(reasons, "recipe has no ingredients")
	}
	if len(candidate.Instructions) < 1 {
		reasons = append(reasons, "recipe has no instructions")
	}

	for i, step := range candidate.Instructions {
		if step.ID == "" {
			reasons = append(reasons, fmt.Sprintf("instruction %d has no id", i+1))
		}
		if strings.TrimSpace(step.Text) == "" {
			reasons = append(reasons, fmt.Sprintf("instruction %d has no text", i+1))
		}
		if len(step.Note) > maxNoteLength {
			reasons = append(reasons, fmt.Sprintf("instruction %d note exceeds %d characters", i+1, maxNoteLength))
		}
	}

	for _, ing := range candidate.AllIngredients() {
		if strings.TrimSpace(ing.Name) == "" {
			reasons = append(reasons, "ingredient with empty name")
			break
		}
	}

	// Struct tags back up the hand checks; a tag violation the checks above
	// missed still blocks persistence.
	if len(reasons) == 0 {
		if err := structValidator.Struct(candidate); err != nil {
			reasons = append(reasons, "recipe failed structural validation")
			zap.L().Warn("validator: struct tag violation", zap.Error(err))
		}
	}

	if len(reasons) > 0 {
		return Result{OK: false, Reasons: reasons}
	}

	var warnings []string
	if candidate.Yield == "" {
		warnings = append(warnings, "no yield")
	}
	if candidate.PrepTimeMinutes == 0 && candidate.CookTimeMinutes == 0 && candidate.TotalTimeMinutes == 0 {
		warnings = append(warnings, "no timing information")
	}
	if candidate.ImageURL == "" {
		warnings = append(warnings, "no image")
	}
	if len(warnings) > 0 {
		zap.L().Info("validator: soft warnings",
			zap.String("title", candidate.Title),
			zap.Strings("warnings", warnings),
		)
	}

	return Result{OK: true, Warnings: warnings}
}

// InstructionSteps validates a replacement instruction list for a partial
// patch: every step needs a stable id, non-empty text, and a bounded note.
func InstructionSteps(steps []model.Instruction) error {
	if len(steps) == 0 {
		return fmt.Errorf("instructions cannot be empty")
	}
	for i, step := range steps {
		if step.ID == "" {
			return fmt.Errorf("instruction %d has no id", i+1)
		}
		if strings.TrimSpace(step.Text) == "" {
			return fmt.Errorf("instruction %d has no text", i+1)
		}
		if len(step.Note) > maxNoteLength {
			return fmt.Errorf("instruction %d note exceeds %d characters", i+1, maxNoteLength)
		}
	}
	return nil
}
