// Package embedding adapts a generator.Provider's raw Embed call into
// the batching, truncation, and cosine-similarity helpers the rest of
// the engine needs (chunk embedding at ingest time, sentence-to-chunk
// similarity during grounding validation).
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// maxEmbedChars bounds how much text is sent to the embedding model in
// one call; most embedding models truncate silently past their token
// limit, so long chunks are cut on a word boundary before embedding.
const maxEmbedChars = 2000

// Provider is the subset of generator.Provider this package depends on.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder batches and truncates text before handing it to a Provider.
type Embedder struct {
	provider  Provider
	batchSize int
}

func New(provider Provider) *Embedder {
	return &Embedder{provider: provider, batchSize: 32}
}

// Truncate cuts text to maxEmbedChars on a word boundary, leaving short
// texts untouched.
func Truncate(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	cut := strings.LastIndex(text[:maxEmbedChars], " ")
	if cut <= 0 {
		cut = maxEmbedChars
	}
	return text[:cut]
}

// EmbedBatch embeds texts in batches of e.batchSize, falling back to
// per-text calls within a batch that fails so a single oversized text
// doesn't lose the rest of the batch. A text that also fails on its own
// is left with a nil vector; an error is returned only when every text
// of a batch fails.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-i)
		for j := range batch {
			batch[j] = Truncate(texts[i+j])
		}

		vecs, err := e.provider.Embed(ctx, batch)
		if err != nil {
			failed := 0
			for j, text := range batch {
				single, serr := e.provider.Embed(ctx, []string{text})
				if serr != nil {
					failed++
					err = fmt.Errorf("embedding text %d: %w", i+j, serr)
					continue
				}
				out[i+j] = single[0]
			}
			if failed == len(batch) {
				return nil, err
			}
			continue
		}
		for j, v := range vecs {
			out[i+j] = v
		}
	}
	return out, nil
}

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [0, 1] (embeddings are expected to be unit-normalized, but
// clamping guards against floating-point drift and dissimilar vectors).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
