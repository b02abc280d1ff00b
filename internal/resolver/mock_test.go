package resolver

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/pkg/gemini"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, rec *model.CacheRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*model.CacheRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec, args.Error(1)
}

func (m *mockStore) GetBySourceKey(ctx context.Context, key string) (*model.CacheRecord, error) {
	args := m.Called(ctx, key)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec, args.Error(1)
}

func (m *mockStore) UpdateData(ctx context.Context, id string, data model.CanonicalRecipe) error {
	return m.Called(ctx, id, data).Error(0)
}

func (m *mockStore) TouchProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) ListRecords(ctx context.Context, limit, offset int) ([]model.CacheRecord, error) {
	args := m.Called(ctx, limit, offset)
	recs, _ := args.Get(0).([]model.CacheRecord)
	return recs, args.Error(1)
}

func (m *mockStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	return m.Called(ctx, id, vec).Error(0)
}

func (m *mockStore) SearchSimilar(ctx context.Context, query []float32, threshold float64, limit int) ([]model.MatchCandidate, error) {
	args := m.Called(ctx, query, threshold, limit)
	cands, _ := args.Get(0).([]model.MatchCandidate)
	return cands, args.Error(1)
}

func (m *mockStore) GetPointer(ctx context.Context, id string) (*model.SavedPointer, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.SavedPointer)
	return p, args.Error(1)
}

func (m *mockStore) RepointPointer(ctx context.Context, pointerID, recordID string) error {
	return m.Called(ctx, pointerID, recordID).Error(0)
}

func (m *mockStore) UpdatePointerTitle(ctx context.Context, pointerID, title string) error {
	return m.Called(ctx, pointerID, title).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

func (m *mockEmbedder) GenerateFromImages(ctx context.Context, prompt string, images []gemini.ImageInput) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, prompt, images)
	resp, _ := args.Get(0).(*gemini.GenerateResponse)
	return resp, args.Error(1)
}
