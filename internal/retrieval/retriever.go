// Package retrieval executes search queries: structured-hint extraction,
// parallel keyword and vector legs, reciprocal-rank fusion, access
// filtering and a cross-encoder rerank of the top candidates.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/embedding"
	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/rerank"
)

// Principal is the identity a query runs as. Authentication happens
// upstream; retrieval only enforces document access against it.
type Principal struct {
	ID     string   `json:"id"`
	Groups []string `json:"groups,omitempty"`
}

// RequestFilters are the caller-supplied explicit filters, merged with
// whatever ExtractFilters finds in the query text.
type RequestFilters struct {
	TimeCutoff  *time.Time   `json:"time_cutoff,omitempty"`
	Sources     []string     `json:"sources,omitempty"`
	Tags        []models.Tag `json:"tags,omitempty"`
	FavorRecent bool         `json:"favor_recent,omitempty"`
}

type SearchRequest struct {
	Query     string         `json:"query"`
	Filters   RequestFilters `json:"filters"`
	Principal Principal      `json:"-"`
	Limit     int            `json:"limit,omitempty"`
}

type SearchResponse struct {
	Results []indexstore.SearchResult `json:"results"`
	// Degraded marks keyword-only responses served while the vector leg
	// was unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Store is the read surface a query needs.
type Store interface {
	indexstore.SearchStore
	FetchAccess(ctx context.Context, docIDs []string) (map[string]models.AccessControlEntry, error)
}

type Options struct {
	CandidateLimit int // per-leg candidate pool
	RerankTopK     int // fused results given to the cross-encoder
	DefaultLimit   int
}

type Retriever struct {
	store        Store
	embedder     *embedding.Service
	modelReg     *embedding.Registry
	scorer       rerank.Scorer // nil disables the rerank pass
	cache        *Cache        // nil disables response caching
	knownSources []string
	opts         Options
}

func NewRetriever(store Store, embedder *embedding.Service, modelReg *embedding.Registry,
	scorer rerank.Scorer, cache *Cache, knownSources []string, opts Options) *Retriever {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 50
	}
	if opts.RerankTopK <= 0 {
		opts.RerankTopK = 20
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	return &Retriever{
		store:        store,
		embedder:     embedder,
		modelReg:     modelReg,
		scorer:       scorer,
		cache:        cache,
		knownSources: knownSources,
		opts:         opts,
	}
}

// Search runs the full pipeline. The response is finite and not
// restartable; callers wanting more results re-issue with a larger limit.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = r.opts.DefaultLimit
	}

	if r.cache != nil {
		if resp, ok := r.cache.Get(ctx, req); ok {
			return resp, nil
		}
	}

	text, filters := ExtractFilters(req.Query, r.knownSources, time.Now().UTC())
	mergeFilters(&filters, req.Filters)

	keyword, vector, degraded, err := r.retrieveCandidates(ctx, text, filters)
	if err != nil {
		return nil, err
	}

	fused := fuse(keyword, vector)

	visible, err := r.filterAccess(ctx, fused, req.Principal)
	if err != nil {
		return nil, err
	}

	visible = r.rerankTop(ctx, text, visible)

	if len(visible) > req.Limit {
		visible = visible[:req.Limit]
	}
	results := make([]indexstore.SearchResult, len(visible))
	for i, f := range visible {
		results[i] = f.SearchResult
	}

	resp := &SearchResponse{Results: results, Degraded: degraded}
	if r.cache != nil && !degraded {
		r.cache.Set(ctx, req, resp)
	}
	return resp, nil
}

// retrieveCandidates runs both legs in parallel. A failed vector leg
// degrades the response to keyword-only instead of failing the query; the
// query errors only when no leg produced candidates.
func (r *Retriever) retrieveCandidates(ctx context.Context, text string, filters indexstore.SearchFilters) (
	keyword, vector []indexstore.SearchResult, degraded bool, err error) {

	var keywordErr, vectorErr error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		keyword, keywordErr = r.store.KeywordSearch(gctx, text, filters, r.opts.CandidateLimit)
		return nil
	})
	g.Go(func() error {
		vector, vectorErr = r.vectorLeg(gctx, text, filters)
		return nil
	})
	_ = g.Wait()

	if vectorErr != nil {
		if keywordErr != nil {
			return nil, nil, false, fmt.Errorf("search unavailable: keyword: %v; vector: %w", keywordErr, vectorErr)
		}
		slog.Warn("vector search failed, degrading to keyword-only", "error", vectorErr)
		return keyword, nil, true, nil
	}
	if keywordErr != nil {
		slog.Warn("keyword search failed, serving vector-only", "error", keywordErr)
		return nil, vector, true, nil
	}
	return keyword, vector, false, nil
}

func (r *Retriever) vectorLeg(ctx context.Context, text string, filters indexstore.SearchFilters) ([]indexstore.SearchResult, error) {
	// One primary snapshot per query: a promotion landing mid-query is
	// either entirely before or entirely after this read.
	primary, err := r.modelReg.Primary()
	if err != nil {
		return nil, err
	}
	queryVec, err := r.embedder.EmbedSingle(ctx, primary.Name, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.VectorSearch(ctx, queryVec, primary.ID, filters, r.opts.CandidateLimit)
}

// filterAccess drops every chunk whose document the principal cannot see.
// Documents with no access entry (or a fetch miss) are excluded rather
// than risking a leak; nothing is serialized without a passed check from
// this same request.
func (r *Retriever) filterAccess(ctx context.Context, fused []fusedResult, p Principal) ([]fusedResult, error) {
	if len(fused) == 0 {
		return fused, nil
	}

	seen := make(map[string]struct{}, len(fused))
	docIDs := make([]string, 0, len(fused))
	for _, f := range fused {
		if _, ok := seen[f.DocumentID]; ok {
			continue
		}
		seen[f.DocumentID] = struct{}{}
		docIDs = append(docIDs, f.DocumentID)
	}

	entries, err := r.store.FetchAccess(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch access entries: %w", err)
	}

	visible := fused[:0:0]
	for _, f := range fused {
		entry, ok := entries[f.DocumentID]
		if !ok {
			continue
		}
		if !entry.Permits(p.ID, p.Groups) {
			continue
		}
		visible = append(visible, f)
	}
	return visible, nil
}

// rerankTop re-scores the top-K fused candidates with the cross-encoder.
// Any scorer failure keeps the fused order; rerank is an improvement pass,
// never a point of failure.
func (r *Retriever) rerankTop(ctx context.Context, query string, fused []fusedResult) []fusedResult {
	if r.scorer == nil || len(fused) == 0 {
		return fused
	}
	k := r.opts.RerankTopK
	if k > len(fused) {
		k = len(fused)
	}

	top := make([]fusedResult, k)
	copy(top, fused[:k])

	failed := false
	for i := range top {
		score, err := r.scorer.Score(ctx, query, top[i].Content)
		if err != nil {
			failed = true
			break
		}
		top[i].Score = score
	}
	if failed {
		return fused
	}

	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Score > top[j].Score
	})
	return append(top, fused[k:]...)
}

func mergeFilters(dst *indexstore.SearchFilters, req RequestFilters) {
	if req.TimeCutoff != nil {
		if dst.TimeCutoff == nil || req.TimeCutoff.After(*dst.TimeCutoff) {
			dst.TimeCutoff = req.TimeCutoff
		}
	}
	dst.SourceTypes = append(dst.SourceTypes, req.Sources...)
	dst.Tags = append(dst.Tags, req.Tags...)
	if req.FavorRecent && dst.TimeCutoff == nil {
		cutoff := time.Now().UTC().AddDate(0, -3, 0)
		dst.TimeCutoff = &cutoff
	}
}
