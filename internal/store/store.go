// Package store persists recipe cache records and saved pointers.
package store

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/plateful/plateful/internal/model"
)

// ErrDuplicateSourceKey is returned when an insert collides with the unique
// constraint on source_key. Two concurrent submissions racing on the same
// new URL surface this loudly rather than silently dropping a write.
var ErrDuplicateSourceKey = eris.New("store: source key already exists")

// ErrNotFound is returned for lookups by id that match no row.
var ErrNotFound = eris.New("store: record not found")

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Records
	Insert(ctx context.Context, rec *model.CacheRecord) error
	GetByID(ctx context.Context, id string) (*model.CacheRecord, error)
	// GetBySourceKey returns (nil, nil) on a cache miss.
	GetBySourceKey(ctx context.Context, key string) (*model.CacheRecord, error)
	UpdateData(ctx context.Context, id string, data model.CanonicalRecipe) error
	TouchProcessed(ctx context.Context, id string) error
	ListRecords(ctx context.Context, limit, offset int) ([]model.CacheRecord, error)

	// Fuzzy index
	SetEmbedding(ctx context.Context, id string, vec []float32) error
	// SearchSimilar ranks original records by cosine similarity to the
	// query vector, descending, dropping results below threshold.
	SearchSimilar(ctx context.Context, query []float32, threshold float64, limit int) ([]model.MatchCandidate, error)

	// Saved pointers
	GetPointer(ctx context.Context, id string) (*model.SavedPointer, error)
	RepointPointer(ctx context.Context, pointerID, recordID string) error
	UpdatePointerTitle(ctx context.Context, pointerID, title string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// CosineSimilarity computes the cosine similarity of two vectors. Returns 0
// for mismatched or zero-length input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankCandidates scores rows against the query and returns the top matches
// above threshold, descending. Shared by both store drivers, which load
// candidate vectors and rank in-process.
func rankCandidates(rows []model.CacheRecord, query []float32, threshold float64, limit int) []model.MatchCandidate {
	var out []model.MatchCandidate
	for _, rec := range rows {
		if rec.Original == nil || len(rec.Original.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(query, rec.Original.Embedding)
		if sim >= threshold {
			out = append(out, model.MatchCandidate{Record: rec, Similarity: sim})
		}
	}
	// Insertion sort: candidate sets are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Similarity > out[j-1].Similarity; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
