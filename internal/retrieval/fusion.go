package retrieval

import (
	"sort"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/indexstore"
)

// rrfK is the reciprocal-rank-fusion smoothing constant; 60 is the
// standard value across search engines.
const rrfK = 60

// fusedResult carries a chunk through fusion with both leg scores kept for
// tie-breaking.
type fusedResult struct {
	indexstore.SearchResult
	fusedScore   float64
	lexicalScore float64
	lexicalRank  int
	vectorRank   int
	inBoth       bool
}

// fuse merges the keyword and vector candidate sets with reciprocal rank
// fusion. A chunk present in both lists keeps the combined score. Ordering
// is deterministic: fused score, then both-lists membership, then lexical
// score, then more recent document, then chunk ID.
func fuse(keyword, vector []indexstore.SearchResult) []fusedResult {
	if len(keyword) == 0 && len(vector) == 0 {
		return []fusedResult{}
	}

	byID := make(map[uuid.UUID]*fusedResult, len(keyword)+len(vector))

	for rank, r := range keyword {
		f := &fusedResult{SearchResult: r, lexicalScore: r.Score, lexicalRank: rank + 1}
		f.fusedScore += 1.0 / float64(rrfK+rank+1)
		byID[r.ChunkID] = f
	}
	for rank, r := range vector {
		f, ok := byID[r.ChunkID]
		if !ok {
			f = &fusedResult{SearchResult: r}
			byID[r.ChunkID] = f
		} else {
			f.inBoth = true
		}
		f.vectorRank = rank + 1
		f.fusedScore += 1.0 / float64(rrfK+rank+1)
	}

	out := make([]fusedResult, 0, len(byID))
	for _, f := range byID {
		f.Score = f.fusedScore
		out = append(out, *f)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.fusedScore != b.fusedScore {
			return a.fusedScore > b.fusedScore
		}
		if a.inBoth != b.inBoth {
			return a.inBoth
		}
		if a.lexicalScore != b.lexicalScore {
			return a.lexicalScore > b.lexicalScore
		}
		if !a.DocUpdatedAt.Equal(b.DocUpdatedAt) {
			return a.DocUpdatedAt.After(b.DocUpdatedAt)
		}
		return a.ChunkID.String() < b.ChunkID.String()
	})

	normalize(out)
	return out
}

// normalize scales fused scores so the top result is 1.0; downstream
// consumers compare within one response only.
func normalize(results []fusedResult) {
	if len(results) == 0 || results[0].fusedScore == 0 {
		return
	}
	max := results[0].fusedScore
	for i := range results {
		results[i].Score = results[i].fusedScore / max
	}
}
