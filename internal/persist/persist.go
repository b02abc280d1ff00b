// Package persist writes pipeline output to the recipe cache. Original
// records are immutable once committed; edits go through Fork (new
// user_modified record) or Patch (in-place update of an existing fork).
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/store"
	"github.com/plateful/plateful/internal/validate"
	"github.com/plateful/plateful/internal/writebehind"
	"github.com/plateful/plateful/pkg/gemini"
)

// ErrNeedsFork is returned when a patch targets an original record. The
// caller must fork first and patch the fork.
var ErrNeedsFork = eris.New("persist: record is an original and cannot be modified")

const (
	defaultEmbedTimeout = 30 * time.Second
	pointerTitleQuiet   = 2 * time.Second
)

var titleCaser = cases.Title(language.English)

// Saver owns writes to the cache and the asynchronous embedding backfill.
// Pointer-title updates ride a debounced queue: repeated forks against the
// same pointer collapse to one title write.
type Saver struct {
	store        store.Store
	embedder     gemini.Client
	embedTimeout time.Duration
	titles       *writebehind.Queue[string]

	wg sync.WaitGroup
}

// New builds a Saver. The embedder may be nil, in which case records are
// committed without similarity vectors.
func New(s store.Store, embedder gemini.Client) *Saver {
	return &Saver{
		store:        s,
		embedder:     embedder,
		embedTimeout: defaultEmbedTimeout,
		titles: writebehind.New(pointerTitleQuiet, func(ctx context.Context, pointerID, title string) error {
			return s.UpdatePointerTitle(ctx, pointerID, title)
		}),
	}
}

// Commit inserts a new original record for recipe under sourceKey. The
// record id is generated here and forced into the recipe document, so the
// stored JSON always carries the id of its own row. The embedding is
// computed after the insert, off the request path: a record may briefly be
// findable by exact key but not by similarity.
//
// A duplicate source key means another submission won the race; the
// existing record is returned instead of an error.
func (s *Saver) Commit(ctx context.Context, recipe *model.CanonicalRecipe, sourceKey string) (*model.CacheRecord, error) {
	id := uuid.New().String()
	recipe.ID = id
	now := time.Now().UTC()
	rec := &model.CacheRecord{
		ID:              id,
		SourceType:      model.SourceOriginal,
		Data:            *recipe,
		CreatedAt:       now,
		LastProcessedAt: now,
		Original:        &model.OriginalMeta{SourceKey: sourceKey},
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		if eris.Is(err, store.ErrDuplicateSourceKey) && sourceKey != "" {
			existing, lookupErr := s.store.GetBySourceKey(ctx, sourceKey)
			if lookupErr == nil && existing != nil {
				zap.L().Info("commit lost insert race, returning existing record",
					zap.String("source_key", sourceKey),
					zap.String("record_id", existing.ID))
				return existing, nil
			}
		}
		return nil, eris.Wrap(err, "persist: commit original")
	}
	s.scheduleEmbedding(rec.ID, rec.Data)
	return rec, nil
}

// Fork copies parent into a new user_modified record. When modified is nil
// the parent's data is carried over unchanged. If pointerID is set, the
// caller's saved pointer is re-pointed at the fork best-effort: a pointer
// failure never fails the fork itself.
func (s *Saver) Fork(ctx context.Context, parentID string, modified *model.CanonicalRecipe, changeDescription, pointerID string) (*model.CacheRecord, error) {
	parent, err := s.store.GetByID(ctx, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "persist: fork parent lookup")
	}

	data := parent.Data
	if modified != nil {
		data = *modified
	}
	id := uuid.New().String()
	data.ID = id
	now := time.Now().UTC()
	fork := &model.CacheRecord{
		ID:              id,
		SourceType:      model.SourceUserModified,
		Data:            data,
		CreatedAt:       now,
		LastProcessedAt: now,
		Fork: &model.ForkMeta{
			ParentID:          parent.ID,
			ChangeDescription: changeDescription,
		},
	}
	if err := s.store.Insert(ctx, fork); err != nil {
		return nil, eris.Wrap(err, "persist: insert fork")
	}

	if pointerID != "" {
		if err := s.store.RepointPointer(ctx, pointerID, fork.ID); err != nil {
			zap.L().Warn("repointing saved pointer failed, fork kept",
				zap.String("pointer_id", pointerID),
				zap.String("fork_id", fork.ID),
				zap.Error(err))
		} else {
			s.titles.Put(pointerID, DisplayTitle(data.Title))
		}
	}
	return fork, nil
}

// PatchRequest carries a partial update. Nil fields are left untouched;
// Instructions and IngredientGroups, when present, replace the stored
// slices wholesale.
type PatchRequest struct {
	Title            *string                 `json:"title,omitempty"`
	Description      *string                 `json:"description,omitempty"`
	Yield            *string                 `json:"yield,omitempty"`
	PrepTimeMinutes  *int                    `json:"prep_time_minutes,omitempty"`
	CookTimeMinutes  *int                    `json:"cook_time_minutes,omitempty"`
	TotalTimeMinutes *int                    `json:"total_time_minutes,omitempty"`
	ImageURL         *string                 `json:"image_url,omitempty"`
	Instructions     []model.Instruction     `json:"instructions,omitempty"`
	IngredientGroups []model.IngredientGroup `json:"ingredient_groups,omitempty"`
}

// Patch applies req to an existing fork. Patching an original returns
// ErrNeedsFork. The merged document is re-validated before the write and
// its id re-forced to the record id.
func (s *Saver) Patch(ctx context.Context, id string, req PatchRequest) (*model.CacheRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "persist: patch lookup")
	}
	if !rec.IsUserModified() {
		return nil, eris.Wrap(ErrNeedsFork, id)
	}

	data := rec.Data
	if req.Title != nil {
		data.Title = *req.Title
	}
	if req.Description != nil {
		data.Description = *req.Description
	}
	if req.Yield != nil {
		data.Yield = *req.Yield
	}
	if req.PrepTimeMinutes != nil {
		data.PrepTimeMinutes = *req.PrepTimeMinutes
	}
	if req.CookTimeMinutes != nil {
		data.CookTimeMinutes = *req.CookTimeMinutes
	}
	if req.TotalTimeMinutes != nil {
		data.TotalTimeMinutes = *req.TotalTimeMinutes
	}
	if req.Instructions != nil {
		if err := validate.InstructionSteps(req.Instructions); err != nil {
			return nil, eris.Wrap(err, "persist: patch instructions")
		}
		data.Instructions = req.Instructions
	}
	if req.IngredientGroups != nil {
		data.IngredientGroups = req.IngredientGroups
	}
	if req.ImageURL != nil {
		data.ImageURL = *req.ImageURL
	}
	data.ID = rec.ID

	if result := validate.Recipe(&data); !result.OK {
		return nil, eris.Errorf("persist: patched recipe invalid: %v", result.Reasons)
	}
	if err := s.store.UpdateData(ctx, rec.ID, data); err != nil {
		return nil, eris.Wrap(err, "persist: patch write")
	}
	rec.Data = data
	return rec, nil
}

// Refresh re-runs the embedding backfill for an existing record.
func (s *Saver) Refresh(id string, data model.CanonicalRecipe) {
	s.scheduleEmbedding(id, data)
}

// Close flushes pending pointer-title writes and waits for in-flight
// embedding writes to drain.
func (s *Saver) Close() {
	s.titles.Close()
	s.wg.Wait()
}

// scheduleEmbedding computes and stores the similarity vector in the
// background. Detached from the request context so a fast client response
// does not cancel the write.
func (s *Saver) scheduleEmbedding(id string, data model.CanonicalRecipe) {
	if s.embedder == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.embedTimeout)
		defer cancel()

		vec, err := s.embedder.EmbedText(ctx, data.EmbeddingText())
		if err != nil {
			zap.L().Warn("embedding backfill failed",
				zap.String("record_id", id),
				zap.Error(err))
			return
		}
		if err := s.store.SetEmbedding(ctx, id, vec); err != nil {
			zap.L().Warn("storing embedding failed",
				zap.String("record_id", id),
				zap.Error(err))
		}
	}()
}

// DisplayTitle normalizes a recipe title for saved-pointer display.
func DisplayTitle(title string) string {
	return titleCaser.String(title)
}
