// Package pipeline orchestrates recipe submissions end to end: classify,
// resolve against the cache, extract, structure, validate, persist. It owns
// the error taxonomy and the per-key deduplication of concurrent misses.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/plateful/plateful/internal/classify"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/persist"
	"github.com/plateful/plateful/internal/scrape"
	"github.com/plateful/plateful/internal/store"
	"github.com/plateful/plateful/internal/structure"
	"github.com/plateful/plateful/internal/validate"
	"github.com/plateful/plateful/internal/vision"
)

// Resolver answers cache lookups. Lookup failures degrade to misses.
type Resolver interface {
	Exact(ctx context.Context, sourceKey string) *model.CacheRecord
	Fuzzy(ctx context.Context, text string) []model.MatchCandidate
}

// Scraper fetches page content for URL and video submissions.
type Scraper interface {
	Scrape(ctx context.Context, target scrape.Target) (*scrape.Result, error)
}

// VisionExtractor turns photographed recipe pages into raw text.
type VisionExtractor interface {
	Extract(ctx context.Context, pages []vision.Page) (*vision.Extraction, error)
}

// Structurer turns raw text into a CanonicalRecipe and derives variations.
type Structurer interface {
	Parse(ctx context.Context, rawText string) (*model.CanonicalRecipe, model.Usage, error)
	Variation(ctx context.Context, original *model.CanonicalRecipe, kind model.VariationKind) (*model.CanonicalRecipe, model.Usage, error)
}

// Saver writes pipeline output to the cache.
type Saver interface {
	Commit(ctx context.Context, recipe *model.CanonicalRecipe, sourceKey string) (*model.CacheRecord, error)
	Fork(ctx context.Context, parentID string, modified *model.CanonicalRecipe, changeDescription, pointerID string) (*model.CacheRecord, error)
	Patch(ctx context.Context, id string, req persist.PatchRequest) (*model.CacheRecord, error)
}

// Pipeline wires the submission flow together.
type Pipeline struct {
	store    store.Store
	resolver Resolver
	scraper  Scraper
	vision   VisionExtractor
	parser   Structurer
	saver    Saver

	// group collapses concurrent misses on the same normalized key into
	// one extraction; inflight marks keys being extracted so later
	// submissions can answer with a loading result instead of blocking.
	group    singleflight.Group
	inflight sync.Map
}

// New assembles a Pipeline from its stages.
func New(st store.Store, res Resolver, scr Scraper, vis VisionExtractor, parser Structurer, saver Saver) *Pipeline {
	return &Pipeline{
		store:    st,
		resolver: res,
		scraper:  scr,
		vision:   vis,
		parser:   parser,
		saver:    saver,
	}
}

// outcome is what one extraction produces under singleflight.
type outcome struct {
	rec  *model.CacheRecord
	diag model.Diagnostics
}

// SubmitText handles free-text input: a recipe name, pasted recipe text, or
// a URL.
func (p *Pipeline) SubmitText(ctx context.Context, raw string) (*model.SubmissionResult, error) {
	start := time.Now()
	raw = strings.TrimSpace(raw)

	switch kind := classify.Classify(raw); kind {
	case model.KindURL, model.KindVideo:
		return p.submitURL(ctx, raw, kind == model.KindVideo, start)
	case model.KindRawText:
		return p.submitRawText(ctx, raw, start)
	default:
		return nil, newError(CodeInvalidInput, "Enter a recipe name, a link, or the recipe text itself.", nil)
	}
}

func (p *Pipeline) submitURL(ctx context.Context, raw string, isVideo bool, start time.Time) (*model.SubmissionResult, error) {
	key, err := classify.NormalizeURL(raw)
	if err != nil {
		return nil, newError(CodeInvalidInput, "That link doesn't look valid.", err)
	}

	if rec := p.resolver.Exact(ctx, key); rec != nil {
		return navigateResult(rec, key, model.Diagnostics{CacheHit: true, Elapsed: time.Since(start)}), nil
	}

	if _, busy := p.inflight.LoadOrStore(key, struct{}{}); busy {
		return loadingResult(key, start), nil
	}
	v, err, shared := p.group.Do(key, func() (any, error) {
		return p.extractURL(ctx, key, isVideo)
	})
	p.inflight.Delete(key)
	if err != nil {
		return nil, err
	}
	out := v.(*outcome)
	diag := out.diag
	diag.CacheHit = diag.CacheHit || shared
	diag.Elapsed = time.Since(start)
	return navigateResult(out.rec, key, diag), nil
}

func (p *Pipeline) extractURL(ctx context.Context, key string, isVideo bool) (*outcome, error) {
	res, err := p.scraper.Scrape(ctx, scrape.Target{URL: key, IsVideo: isVideo})
	if err != nil {
		return nil, newError(CodeGenerationFailed, "We couldn't read that page.", err)
	}

	diag := model.Diagnostics{ScrapeStrategy: res.Source}

	recipe, usage, err := p.structureText(ctx, res.Content)
	if err != nil {
		return nil, err
	}
	diag.Usage.Add(usage)

	rec, err := p.commit(ctx, recipe, key)
	if err != nil {
		return nil, err
	}
	return &outcome{rec: rec, diag: diag}, nil
}

func (p *Pipeline) submitRawText(ctx context.Context, raw string, start time.Time) (*model.SubmissionResult, error) {
	if candidates := p.resolver.Fuzzy(ctx, raw); len(candidates) > 0 {
		return &model.SubmissionResult{
			Kind:        model.ResultShowMatchModal,
			Candidates:  candidates,
			Diagnostics: &model.Diagnostics{CacheHit: true, Elapsed: time.Since(start)},
		}, nil
	}

	recipe, usage, err := p.structureText(ctx, raw)
	if err != nil {
		return nil, err
	}
	rec, err := p.commit(ctx, recipe, "")
	if err != nil {
		return nil, err
	}
	return navigateResult(rec, "", model.Diagnostics{Usage: usage, Elapsed: time.Since(start)}), nil
}

// SubmitImages handles one or more photographed recipe pages, in page order.
func (p *Pipeline) SubmitImages(ctx context.Context, pages []vision.Page) (*model.SubmissionResult, error) {
	start := time.Now()
	if len(pages) == 0 {
		return nil, newError(CodeInvalidInput, "Attach at least one photo of the recipe.", nil)
	}

	raw := make([][]byte, len(pages))
	for i, pg := range pages {
		raw[i] = pg.Data
	}
	key := classify.HashPages(raw)

	if rec := p.resolver.Exact(ctx, key); rec != nil {
		return navigateResult(rec, key, model.Diagnostics{CacheHit: true, Elapsed: time.Since(start)}), nil
	}

	if _, busy := p.inflight.LoadOrStore(key, struct{}{}); busy {
		return loadingResult(key, start), nil
	}
	v, err, shared := p.group.Do(key, func() (any, error) {
		return p.extractImages(ctx, key, pages)
	})
	p.inflight.Delete(key)
	if err != nil {
		return nil, err
	}
	out := v.(*outcome)
	diag := out.diag
	diag.CacheHit = diag.CacheHit || shared
	diag.Elapsed = time.Since(start)
	return navigateResult(out.rec, key, diag), nil
}

func (p *Pipeline) extractImages(ctx context.Context, key string, pages []vision.Page) (*outcome, error) {
	ext, err := p.vision.Extract(ctx, pages)
	if err != nil {
		if eris.Is(err, vision.ErrEmptyOutput) {
			return nil, newError(CodeGenerationEmpty, "We couldn't find enough recipe text in those photos.", err)
		}
		return nil, newError(CodeGenerationFailed, "We couldn't read those photos.", err)
	}

	diag := model.Diagnostics{
		ServedBy:     ext.ServedBy,
		FallbackUsed: ext.Fallback,
		Usage:        ext.Usage,
	}

	recipe, usage, err := p.structureText(ctx, ext.Text)
	if err != nil {
		return nil, err
	}
	diag.Usage.Add(usage)

	rec, err := p.commit(ctx, recipe, key)
	if err != nil {
		return nil, err
	}
	return &outcome{rec: rec, diag: diag}, nil
}

// structureText runs the shared structuring and validation steps.
func (p *Pipeline) structureText(ctx context.Context, text string) (*model.CanonicalRecipe, model.Usage, error) {
	recipe, usage, err := p.parser.Parse(ctx, text)
	if err != nil {
		if eris.Is(err, structure.ErrUnparseable) {
			return nil, usage, newError(CodeGenerationFailed, "We couldn't turn that into a recipe.", err)
		}
		return nil, usage, newError(CodeGenerationFailed, "Recipe extraction failed. Try again in a moment.", err)
	}
	if result := validate.Recipe(recipe); !result.OK {
		return nil, usage, newError(CodeFinalValidationFailed, strings.Join(result.Reasons, "; "), nil)
	}
	return recipe, usage, nil
}

// commit persists a validated extraction. A store failure here is terminal
// and surfaced: losing a paid-for extraction silently is the worst outcome.
func (p *Pipeline) commit(ctx context.Context, recipe *model.CanonicalRecipe, key string) (*model.CacheRecord, error) {
	rec, err := p.saver.Commit(ctx, recipe, key)
	if err != nil {
		zap.L().Error("persisting extracted recipe failed",
			zap.String("source_key", key),
			zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: persist extraction")
	}
	return rec, nil
}

// Variation derives a named variation of an existing record as a new fork.
func (p *Pipeline) Variation(ctx context.Context, parentID string, kind model.VariationKind) (*model.SubmissionResult, error) {
	start := time.Now()
	if !model.KnownVariation(kind) {
		return nil, newError(CodeInvalidInput, "Unknown variation type.", nil)
	}

	parent, err := p.store.GetByID(ctx, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: variation parent lookup")
	}

	varied, usage, err := p.parser.Variation(ctx, &parent.Data, kind)
	if err != nil {
		if eris.Is(err, structure.ErrVariationRejected) {
			return nil, newError(CodeFinalValidationFailed, "The generated variation didn't meet the requested constraints.", err)
		}
		return nil, newError(CodeGenerationFailed, "Variation generation failed. Try again in a moment.", err)
	}
	if result := validate.Recipe(varied); !result.OK {
		return nil, newError(CodeFinalValidationFailed, strings.Join(result.Reasons, "; "), nil)
	}

	fork, err := p.saver.Fork(ctx, parentID, varied, "variation: "+string(kind), "")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: persist variation")
	}
	return navigateResult(fork, "", model.Diagnostics{Usage: usage, Elapsed: time.Since(start)}), nil
}

// Fork creates a user-modified copy of a record.
func (p *Pipeline) Fork(ctx context.Context, parentID string, edited *model.CanonicalRecipe, changeDescription, pointerID string) (*model.CacheRecord, error) {
	if edited != nil {
		if result := validate.Recipe(edited); !result.OK {
			return nil, newError(CodeFinalValidationFailed, strings.Join(result.Reasons, "; "), nil)
		}
	}
	return p.saver.Fork(ctx, parentID, edited, changeDescription, pointerID)
}

// Patch applies a partial update to a fork.
func (p *Pipeline) Patch(ctx context.Context, id string, req persist.PatchRequest) (*model.CacheRecord, error) {
	rec, err := p.saver.Patch(ctx, id, req)
	if err != nil {
		if eris.Is(err, persist.ErrNeedsFork) {
			return nil, newError(CodeNeedsFork, "This is the original recipe. Save your own copy to edit it.", err)
		}
		return nil, err
	}
	return rec, nil
}

// Get fetches a record by id.
func (p *Pipeline) Get(ctx context.Context, id string) (*model.CacheRecord, error) {
	return p.store.GetByID(ctx, id)
}

// GetPointer fetches a saved pointer by id.
func (p *Pipeline) GetPointer(ctx context.Context, id string) (*model.SavedPointer, error) {
	return p.store.GetPointer(ctx, id)
}

func navigateResult(rec *model.CacheRecord, key string, diag model.Diagnostics) *model.SubmissionResult {
	return &model.SubmissionResult{
		Kind:          model.ResultNavigateToSummary,
		Record:        rec,
		NormalizedKey: key,
		Diagnostics:   &diag,
	}
}

// loadingResult answers a submission whose key is already being extracted
// by another caller: the client polls the key instead of waiting.
func loadingResult(key string, start time.Time) *model.SubmissionResult {
	return &model.SubmissionResult{
		Kind:          model.ResultNavigateToLoading,
		NormalizedKey: key,
		Diagnostics:   &model.Diagnostics{Elapsed: time.Since(start)},
	}
}
