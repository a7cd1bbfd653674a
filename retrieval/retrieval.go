package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groundrag/groundrag/generator"
	"github.com/groundrag/groundrag/store"
)

// Config holds retrieval engine configuration: the three fusion weights,
// which must sum to 1.0.
type Config struct {
	WeightBM25       float64
	WeightDense      float64
	WeightStructural float64
}

// SearchOptions configures a single retrieve() call.
type SearchOptions struct {
	TopK           int
	DocumentIDs    []int64
	Categories     []string
	MinReliability float64
}

// SearchTrace records the breakdown of a hybrid search for diagnostics.
type SearchTrace struct {
	LexicalResults int     `json:"lexical_results"`
	DenseResults   int     `json:"dense_results"`
	FusedResults   int     `json:"fused_results"`
	BM25Weight     float64 `json:"bm25_weight"`
	DenseWeight    float64 `json:"dense_weight"`
	StructWeight   float64 `json:"struct_weight"`
	TopKRequested  int     `json:"top_k_requested"`
	ElapsedMs      int64   `json:"elapsed_ms"`
}

// Engine performs hybrid retrieval combining lexical (BM25/FTS5) and dense
// (vector) search, fused by the weighted-sum formula in fuse.go.
type Engine struct {
	store    *store.Store
	embedder generator.Provider
	cfg      Config
}

// New creates a retrieval engine. embedder is used to embed the raw query
// text for dense search.
func New(s *store.Store, embedder generator.Provider, cfg Config) *Engine {
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search runs the full retrieve() pipeline: term extraction, concurrent
// lexical+dense search, merge, filter, structural rerank, fuse, sort &
// truncate.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]store.RetrievalResult, *SearchTrace, error) {
	if opts.TopK == 0 {
		opts.TopK = 20
	}

	trace := &SearchTrace{
		BM25Weight:    e.cfg.WeightBM25,
		DenseWeight:   e.cfg.WeightDense,
		StructWeight:  e.cfg.WeightStructural,
		TopKRequested: opts.TopK,
	}

	queryTerms := extractQueryTerms(query)
	ftsQuery := sanitizeFTSQuery(queryTerms)
	fetchK := 2 * opts.TopK

	start := time.Now()

	type result struct {
		results []store.RetrievalResult
		err     error
	}
	lexCh := make(chan result, 1)
	denseCh := make(chan result, 1)

	go func() {
		if ftsQuery == "" {
			lexCh <- result{}
			return
		}
		r, err := e.store.FTSSearch(ctx, ftsQuery, fetchK)
		lexCh <- result{r, err}
	}()

	go func() {
		r, err := e.vectorSearch(ctx, query, fetchK)
		denseCh <- result{r, err}
	}()

	lexRes := <-lexCh
	denseRes := <-denseCh

	if lexRes.err != nil {
		slog.Warn("retrieval: lexical search failed", "error", lexRes.err)
	}
	if denseRes.err != nil {
		slog.Warn("retrieval: dense search failed", "error", denseRes.err)
	}

	normalizeMax(lexRes.results)

	trace.LexicalResults = len(lexRes.results)
	trace.DenseResults = len(denseRes.results)

	merged := mergeCandidates(lexRes.results, denseRes.results)
	applyFilter(merged, FilterOptions{
		DocumentIDs:    opts.DocumentIDs,
		Categories:     opts.Categories,
		MinReliability: opts.MinReliability,
	})

	fused := fuse(merged, query, queryTerms, Weights{
		BM25:       e.cfg.WeightBM25,
		Dense:      e.cfg.WeightDense,
		Structural: e.cfg.WeightStructural,
	}, opts.TopK)

	trace.FusedResults = len(fused)
	trace.ElapsedMs = time.Since(start).Milliseconds()

	if len(fused) == 0 {
		if lexRes.err != nil {
			return nil, trace, fmt.Errorf("lexical search: %w", lexRes.err)
		}
		if denseRes.err != nil {
			return nil, trace, fmt.Errorf("dense search: %w", denseRes.err)
		}
	}

	return fused, trace, nil
}

// vectorSearch embeds the raw query text and searches the vector index.
func (e *Engine) vectorSearch(ctx context.Context, query string, k int) ([]store.RetrievalResult, error) {
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return e.store.VectorSearch(ctx, embeddings[0], k)
}

// ContextWindow returns chunks within ±window of the given chunk's
// sequence_index in the same document — the optional debugging/prompt
// helper from spec.md §4.5, not on the main retrieval path.
func (e *Engine) ContextWindow(ctx context.Context, docID int64, center, window int) ([]store.Chunk, error) {
	return e.store.GetContextWindow(ctx, docID, center, window)
}
