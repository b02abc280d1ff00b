package resolver

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/internal/model"
)

func TestExactHit(t *testing.T) {
	st := &mockStore{}
	want := &model.CacheRecord{ID: "rec-1", SourceType: model.SourceOriginal}
	st.On("GetBySourceKey", mock.Anything, "https://example.com/pasta").Return(want, nil)
	st.On("TouchProcessed", mock.Anything, "rec-1").Return(nil)

	r := New(st, nil)
	got := r.Exact(context.Background(), "https://example.com/pasta")
	require.NotNil(t, got)
	assert.Equal(t, "rec-1", got.ID)
	st.AssertExpectations(t)
}

func TestExactMissAndEmptyKey(t *testing.T) {
	st := &mockStore{}
	st.On("GetBySourceKey", mock.Anything, "https://example.com/none").Return(nil, nil)

	r := New(st, nil)
	assert.Nil(t, r.Exact(context.Background(), "https://example.com/none"))
	assert.Nil(t, r.Exact(context.Background(), ""))
	st.AssertExpectations(t)
}

func TestExactStoreErrorDegradesToMiss(t *testing.T) {
	st := &mockStore{}
	st.On("GetBySourceKey", mock.Anything, "key").Return(nil, eris.New("connection reset"))

	r := New(st, nil)
	assert.Nil(t, r.Exact(context.Background(), "key"))
	st.AssertExpectations(t)
}

func TestFuzzyRanked(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	vec := []float32{0.1, 0.2, 0.3}
	emb.On("EmbedText", mock.Anything, "carbonara").Return(vec, nil)
	st.On("SearchSimilar", mock.Anything, vec, DefaultThreshold, DefaultMaxCandidates).
		Return([]model.MatchCandidate{
			{Record: model.CacheRecord{ID: "rec-1"}, Similarity: 0.97},
			{Record: model.CacheRecord{ID: "rec-2"}, Similarity: 0.93},
		}, nil)

	r := New(st, emb)
	got := r.Fuzzy(context.Background(), "carbonara")
	require.Len(t, got, 2)
	assert.Equal(t, "rec-1", got[0].Record.ID)
	st.AssertExpectations(t)
	emb.AssertExpectations(t)
}

func TestFuzzyEmbedFailureDegradesToMiss(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	emb.On("EmbedText", mock.Anything, "carbonara").Return(nil, eris.New("quota exceeded"))

	r := New(st, emb)
	assert.Nil(t, r.Fuzzy(context.Background(), "carbonara"))
	st.AssertNotCalled(t, "SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	emb.AssertExpectations(t)
}

func TestFuzzySearchFailureDegradesToMiss(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	vec := []float32{1}
	emb.On("EmbedText", mock.Anything, "carbonara").Return(vec, nil)
	st.On("SearchSimilar", mock.Anything, vec, DefaultThreshold, DefaultMaxCandidates).
		Return(nil, eris.New("db down"))

	r := New(st, emb)
	assert.Nil(t, r.Fuzzy(context.Background(), "carbonara"))
	st.AssertExpectations(t)
}

func TestFuzzyRecipeUsesEmbeddingText(t *testing.T) {
	st := &mockStore{}
	emb := &mockEmbedder{}
	recipe := &model.CanonicalRecipe{
		Title: "Carbonara",
		IngredientGroups: []model.IngredientGroup{
			{Ingredients: []model.Ingredient{{Name: "spaghetti"}, {Name: "guanciale"}}},
		},
	}
	emb.On("EmbedText", mock.Anything, "Carbonara\nspaghetti\nguanciale").Return([]float32{1}, nil)
	st.On("SearchSimilar", mock.Anything, mock.Anything, DefaultThreshold, DefaultMaxCandidates).
		Return(nil, nil)

	r := New(st, emb)
	assert.Nil(t, r.FuzzyRecipe(context.Background(), recipe))
	assert.Nil(t, r.FuzzyRecipe(context.Background(), nil))
	emb.AssertExpectations(t)
}

func TestOptions(t *testing.T) {
	r := New(&mockStore{}, nil, WithThreshold(0.8), WithMaxCandidates(5))
	assert.Equal(t, 0.8, r.threshold)
	assert.Equal(t, 5, r.maxCandidates)
}
