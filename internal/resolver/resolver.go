// Package resolver answers "have we seen this recipe before?" It checks the
// exact source-key index first, then falls back to embedding similarity over
// original records. Lookup failures degrade to a cache miss: the pipeline
// would rather re-extract than fail a submission on a flaky index.
package resolver

import (
	"context"

	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/store"
	"github.com/plateful/plateful/pkg/gemini"
)

const (
	// DefaultThreshold is the minimum cosine similarity for a fuzzy match.
	DefaultThreshold = 0.92
	// DefaultMaxCandidates bounds how many matches the UI is offered.
	DefaultMaxCandidates = 3
)

// Resolver resolves submissions against the recipe cache.
type Resolver struct {
	store         store.Store
	embedder      gemini.Client
	threshold     float64
	maxCandidates int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold overrides the fuzzy-match similarity floor.
func WithThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithMaxCandidates overrides the candidate cap.
func WithMaxCandidates(n int) Option {
	return func(r *Resolver) { r.maxCandidates = n }
}

// New builds a Resolver over the given store and embedding client.
func New(s store.Store, embedder gemini.Client, opts ...Option) *Resolver {
	r := &Resolver{
		store:         s,
		embedder:      embedder,
		threshold:     DefaultThreshold,
		maxCandidates: DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exact looks up a record by its normalized source key. Store errors are
// logged and reported as a miss.
func (r *Resolver) Exact(ctx context.Context, sourceKey string) *model.CacheRecord {
	if sourceKey == "" {
		return nil
	}
	rec, err := r.store.GetBySourceKey(ctx, sourceKey)
	if err != nil {
		zap.L().Warn("exact cache lookup failed, treating as miss",
			zap.String("source_key", sourceKey),
			zap.Error(err))
		return nil
	}
	if rec != nil {
		if err := r.store.TouchProcessed(ctx, rec.ID); err != nil {
			zap.L().Warn("touching cache record failed",
				zap.String("record_id", rec.ID),
				zap.Error(err))
		}
	}
	return rec
}

// Fuzzy embeds the given text and ranks stored originals by similarity.
// Embedding or search failures are logged and reported as no matches.
func (r *Resolver) Fuzzy(ctx context.Context, text string) []model.MatchCandidate {
	if text == "" || r.embedder == nil {
		return nil
	}
	vec, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		zap.L().Warn("embedding for fuzzy match failed, treating as miss", zap.Error(err))
		return nil
	}
	candidates, err := r.store.SearchSimilar(ctx, vec, r.threshold, r.maxCandidates)
	if err != nil {
		zap.L().Warn("similarity search failed, treating as miss", zap.Error(err))
		return nil
	}
	return candidates
}

// FuzzyRecipe is Fuzzy over a parsed recipe's embedding text.
func (r *Resolver) FuzzyRecipe(ctx context.Context, recipe *model.CanonicalRecipe) []model.MatchCandidate {
	if recipe == nil {
		return nil
	}
	return r.Fuzzy(ctx, recipe.EmbeddingText())
}
