package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/persist"
	"github.com/plateful/plateful/internal/scrape"
	"github.com/plateful/plateful/internal/vision"
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


type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Exact(ctx context.Context, sourceKey string) *model.CacheRecord {
	args := m.Called(ctx, sourceKey)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec
}

func (m *mockResolver) Fuzzy(ctx context.Context, text string) []model.MatchCandidate {
	args := m.Called(ctx, text)
	cands, _ := args.Get(0).([]model.MatchCandidate)
	return cands
}

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, target scrape.Target) (*scrape.Result, error) {
	args := m.Called(ctx, target)
	res, _ := args.Get(0).(*scrape.Result)
	return res, args.Error(1)
}

type mockVision struct {
	mock.Mock
}

func (m *mockVision) Extract(ctx context.Context, pages []vision.Page) (*vision.Extraction, error) {
	args := m.Called(ctx, pages)
	ext, _ := args.Get(0).(*vision.Extraction)
	return ext, args.Error(1)
}

type mockStructurer struct {
	mock.Mock
}

func (m *mockStructurer) Parse(ctx context.Context, rawText string) (*model.CanonicalRecipe, model.Usage, error) {
	args := m.Called(ctx, rawText)
	rec, _ := args.Get(0).(*model.CanonicalRecipe)
	usage, _ := args.Get(1).(model.Usage)
	return rec, usage, args.Error(2)
}

func (m *mockStructurer) Variation(ctx context.Context, original *model.CanonicalRecipe, kind model.VariationKind) (*model.CanonicalRecipe, model.Usage, error) {
	args := m.Called(ctx, original, kind)
	rec, _ := args.Get(0).(*model.CanonicalRecipe)
	usage, _ := args.Get(1).(model.Usage)
	return rec, usage, args.Error(2)
}

type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) Commit(ctx context.Context, recipe *model.CanonicalRecipe, sourceKey string) (*model.CacheRecord, error) {
	args := m.Called(ctx, recipe, sourceKey)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec, args.Error(1)
}

func (m *mockSaver) Fork(ctx context.Context, parentID string, modified *model.CanonicalRecipe, changeDescription, pointerID string) (*model.CacheRecord, error) {
	args := m.Called(ctx, parentID, modified, changeDescription, pointerID)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec, args.Error(1)
}

func (m *mockSaver) Patch(ctx context.Context, id string, req persist.PatchRequest) (*model.CacheRecord, error) {
	args := m.Called(ctx, id, req)
	rec, _ := args.Get(0).(*model.CacheRecord)
	return rec, args.Error(1)
}
