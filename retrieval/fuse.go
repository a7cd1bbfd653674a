package retrieval

import (
	"sort"
	"strings"

	"github.com/groundrag/groundrag/store"
)

// Weights holds the three fusion coefficients. Defaults come from the
// teacher's RRF weights re-purposed for the weighted-sum formula; they
// must sum to 1.0.
type Weights struct {
	BM25       float64
	Dense      float64
	Structural float64
}

// candidate accumulates the per-method scores for one chunk before fusion,
// mirroring the spec's "each candidate carries (bm25_score, dense_score)
// with missing components defaulting to 0" merge step.
type candidate struct {
	result     store.RetrievalResult
	bm25Score  float64
	denseScore float64
}

// mergeCandidates unions two result sets by chunk id. Scores already carry
// the caller's normalization (lexical scores max-normalized to 1.0 before
// this call; dense scores used as-is per spec.md §4.5 step 3).
func mergeCandidates(lexical, dense []store.RetrievalResult) map[int64]*candidate {
	merged := make(map[int64]*candidate, len(lexical)+len(dense))

	for _, r := range lexical {
		c, ok := merged[r.ChunkID]
		if !ok {
			c = &candidate{result: r}
			merged[r.ChunkID] = c
		}
		c.bm25Score = r.Score
	}
	for _, r := range dense {
		c, ok := merged[r.ChunkID]
		if !ok {
			c = &candidate{result: r}
			merged[r.ChunkID] = c
		}
		c.denseScore = r.Score
	}
	return merged
}

// normalizeMax scales scores so the maximum becomes 1.0, in place. Used for
// the lexical score set only — dense (cosine) scores are already bounded
// and are used as-is per spec.
func normalizeMax(results []store.RetrievalResult) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	for _, r := range results[1:] {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}

// FilterOptions constrains the candidate set before structural rerank.
type FilterOptions struct {
	DocumentIDs   []int64
	Categories    []string
	MinReliability float64
}

// applyFilter drops candidates whose document fails the allowlist,
// category, or reliability constraints. Filtering happens before
// structural rerank and fusion, per spec.md §4.5 step 5.
func applyFilter(candidates map[int64]*candidate, opts FilterOptions) {
	var docSet map[int64]bool
	if len(opts.DocumentIDs) > 0 {
		docSet = make(map[int64]bool, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			docSet[id] = true
		}
	}
	var catSet map[string]bool
	if len(opts.Categories) > 0 {
		catSet = make(map[string]bool, len(opts.Categories))
		for _, c := range opts.Categories {
			catSet[c] = true
		}
	}

	for id, c := range candidates {
		if docSet != nil && !docSet[c.result.DocumentID] {
			delete(candidates, id)
			continue
		}
		if catSet != nil && !catSet[c.result.Category] {
			delete(candidates, id)
			continue
		}
		if c.result.ReliabilityScore < opts.MinReliability {
			delete(candidates, id)
		}
	}
}

// structuralScore computes the [0,1] structural-match component:
//   - +0.5 if the lowercased raw query is a substring of the chunk content
//   - +0.3 × (fraction of query_terms appearing as substrings of the content)
//   - +0.2 if the chunk's structural role is HEADING
func structuralScore(content string, lowerQuery string, queryTerms []string, role string) float64 {
	lowerContent := strings.ToLower(content)
	var score float64

	if lowerQuery != "" && strings.Contains(lowerContent, lowerQuery) {
		score += 0.5
	}

	if len(queryTerms) > 0 {
		matched := 0
		for _, t := range queryTerms {
			if strings.Contains(lowerContent, t) {
				matched++
			}
		}
		score += 0.3 * (float64(matched) / float64(len(queryTerms)))
	}

	if role == "HEADING" {
		score += 0.2
	}

	return score
}

// fuse applies structural rerank and the weighted-sum fusion formula to the
// merged candidate set, then sorts and truncates to topK. Ties break by
// descending dense_score, then by chunk id ascending (stable).
func fuse(candidates map[int64]*candidate, query string, queryTerms []string, w Weights, topK int) []store.RetrievalResult {
	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	results := make([]store.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		structural := structuralScore(c.result.Content, lowerQuery, queryTerms, c.result.StructuralRole)

		final := (w.BM25*c.bm25Score + w.Dense*c.denseScore + w.Structural*structural) *
			c.result.ReliabilityScore * c.result.ConfidenceWeight

		r := c.result
		r.Score = final
		results = append(results, r)
	}

	denseByChunk := make(map[int64]float64, len(candidates))
	for id, c := range candidates {
		denseByChunk[id] = c.denseScore
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		di, dj := denseByChunk[results[i].ChunkID], denseByChunk[results[j].ChunkID]
		if di != dj {
			return di > dj
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
