package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/rerank"
)

type fakeStore struct {
	keyword    []indexstore.SearchResult
	keywordErr error
	vector     []indexstore.SearchResult
	vectorErr  error
	access     map[string]models.AccessControlEntry
	accessErr  error
}

func (s *fakeStore) KeywordSearch(ctx context.Context, query string, filters indexstore.SearchFilters, limit int) ([]indexstore.SearchResult, error) {
	return s.keyword, s.keywordErr
}

func (s *fakeStore) VectorSearch(ctx context.Context, queryVec []float32, modelID uuid.UUID, filters indexstore.SearchFilters, limit int) ([]indexstore.SearchResult, error) {
	return s.vector, s.vectorErr
}

func (s *fakeStore) FetchAccess(ctx context.Context, docIDs []string) (map[string]models.AccessControlEntry, error) {
	if s.accessErr != nil {
		return nil, s.accessErr
	}
	out := make(map[string]models.AccessControlEntry)
	for _, id := range docIDs {
		if e, ok := s.access[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

type fakeModelStore struct {
	primary *models.EmbeddingModel
}

func (s *fakeModelStore) ListModels(context.Context) ([]models.EmbeddingModel, error) {
	return nil, nil
}

func (s *fakeModelStore) GetModelByStatus(_ context.Context, status string) (*models.EmbeddingModel, error) {
	if status == models.ModelStatusPrimary && s.primary != nil {
		return s.primary, nil
	}
	return nil, indexstore.ErrNotFound
}

func (s *fakeModelStore) CreateSecondaryModel(context.Context, string, string, int) (*models.EmbeddingModel, error) {
	return nil, errors.New("not implemented")
}
func (s *fakeModelStore) UpdateBackfillCursor(context.Context, uuid.UUID, string) error { return nil }
func (s *fakeModelStore) ChunksMissingVectors(context.Context, uuid.UUID, string, int) ([]models.DocumentChunk, error) {
	return nil, nil
}
func (s *fakeModelStore) CountChunks(context.Context) (int64, error) { return 0, nil }
func (s *fakeModelStore) CountChunkVectors(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}
func (s *fakeModelStore) UpsertChunkVectors(context.Context, uuid.UUID, []uuid.UUID, [][]float32) error {
	return nil
}
func (s *fakeModelStore) PromoteSecondary(context.Context, uuid.UUID) error { return nil }
func (s *fakeModelStore) DeleteRetiredVectors(context.Context, uuid.UUID, int) (int, error) {
	return 0, nil
}

type fakeProvider struct {
	err error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// contentScorer scores passages by lookup, simulating a cross-encoder.
type contentScorer struct {
	scores map[string]float64
	err    error
}

func (s *contentScorer) Name() string { return "content" }

func (s *contentScorer) Score(_ context.Context, _ string, passage string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[passage], nil
}

func newTestRetriever(t *testing.T, store *fakeStore, scorer rerank.Scorer, provider *fakeProvider) *Retriever {
	t.Helper()
	if provider == nil {
		provider = &fakeProvider{}
	}
	embedSvc := embedding.NewService(provider, time.Second)
	modelReg := embedding.NewRegistry(&fakeModelStore{
		primary: &models.EmbeddingModel{ID: uuid.New(), Name: "m1", Status: models.ModelStatusPrimary},
	}, time.Minute)
	require.NoError(t, modelReg.Refresh(context.Background()))

	return NewRetriever(store, embedSvc, modelReg, scorer, nil, []string{"slack", "github"}, Options{})
}

func publicResult(id byte, doc string) indexstore.SearchResult {
	r := mkResult(id, doc, 0.5)
	r.Content = "content " + string(rune('0'+id))
	return r
}

func TestSearchFiltersInaccessibleDocuments(t *testing.T) {
	store := &fakeStore{
		keyword: []indexstore.SearchResult{
			publicResult(1, "doc-open"),
			publicResult(2, "doc-private"),
			publicResult(3, "doc-unknown"),
		},
		access: map[string]models.AccessControlEntry{
			"doc-open":    {IsPublic: true},
			"doc-private": {Principals: []string{"someone-else"}},
			// doc-unknown deliberately absent
		},
	}
	r := newTestRetriever(t, store, nil, nil)

	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "quarterly roadmap",
		Principal: Principal{ID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "doc-open", resp.Results[0].DocumentID)
}

func TestSearchPermitsByPrincipalAndGroup(t *testing.T) {
	store := &fakeStore{
		keyword: []indexstore.SearchResult{
			publicResult(1, "doc-direct"),
			publicResult(2, "doc-group"),
		},
		access: map[string]models.AccessControlEntry{
			"doc-direct": {Principals: []string{"u1"}},
			"doc-group":  {Groups: []string{"eng"}},
		},
	}
	r := newTestRetriever(t, store, nil, nil)

	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "oncall runbook",
		Principal: Principal{ID: "u1", Groups: []string{"eng"}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearchDegradesWhenVectorLegFails(t *testing.T) {
	store := &fakeStore{
		keyword: []indexstore.SearchResult{publicResult(1, "d1")},
		access:  map[string]models.AccessControlEntry{"d1": {IsPublic: true}},
	}
	r := newTestRetriever(t, store, nil, &fakeProvider{err: embedding.ErrServiceUnavailable})

	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "deploy error",
		Principal: Principal{ID: "u1"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
}

func TestSearchFailsWhenBothLegsFail(t *testing.T) {
	store := &fakeStore{keywordErr: errors.New("fts down")}
	r := newTestRetriever(t, store, nil, &fakeProvider{err: embedding.ErrServiceUnavailable})

	_, err := r.Search(context.Background(), SearchRequest{
		Query:     "anything",
		Principal: Principal{ID: "u1"},
	})
	require.Error(t, err)
}

func TestSearchRerankFailureKeepsFusedOrder(t *testing.T) {
	store := &fakeStore{
		keyword: []indexstore.SearchResult{publicResult(1, "d1"), publicResult(2, "d2")},
		access: map[string]models.AccessControlEntry{
			"d1": {IsPublic: true},
			"d2": {IsPublic: true},
		},
	}
	r := newTestRetriever(t, store, &contentScorer{err: errors.New("llm down")}, nil)

	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "release notes",
		Principal: Principal{ID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d1", resp.Results[0].DocumentID)
	assert.Equal(t, "d2", resp.Results[1].DocumentID)
}

func TestSearchRerankReordersTop(t *testing.T) {
	first := publicResult(1, "d1")
	second := publicResult(2, "d2")
	store := &fakeStore{
		keyword: []indexstore.SearchResult{first, second},
		access: map[string]models.AccessControlEntry{
			"d1": {IsPublic: true},
			"d2": {IsPublic: true},
		},
	}
	scorer := &contentScorer{scores: map[string]float64{
		first.Content:  0.2,
		second.Content: 0.9,
	}}
	r := newTestRetriever(t, store, scorer, nil)

	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "release notes",
		Principal: Principal{ID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "d2", resp.Results[0].DocumentID)
}

func TestSearchRespectsLimit(t *testing.T) {
	var results []indexstore.SearchResult
	for i := byte(1); i <= 20; i++ {
		results = append(results, publicResult(i, "doc"))
	}
	access := map[string]models.AccessControlEntry{"doc": {IsPublic: true}}

	r := newTestRetriever(t, &fakeStore{keyword: results, access: access}, nil, nil)
	resp, err := r.Search(context.Background(), SearchRequest{
		Query:     "everything",
		Principal: Principal{ID: "u1"},
		Limit:     5,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)
}
