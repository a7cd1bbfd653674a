package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	calls  int
	fail   map[string]bool
	dim    int
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	for _, t := range texts {
		if f.fail[t] {
			return nil, errors.New("embedding failed")
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestTruncateLeavesShortTextAlone(t *testing.T) {
	short := "a short chunk"
	if got := Truncate(short); got != short {
		t.Errorf("Truncate() = %q, want unchanged", got)
	}
}

func TestTruncateCutsOnWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 1000)
	got := Truncate(long)
	if len(got) > maxEmbedChars {
		t.Errorf("Truncate() returned %d chars, want <= %d", len(got), maxEmbedChars)
	}
	if strings.HasSuffix(got, "wor") {
		t.Errorf("Truncate() split mid-word: %q", got[len(got)-10:])
	}
}

func TestEmbedBatchFallsBackOnBatchFailure(t *testing.T) {
	p := &fakeProvider{fail: map[string]bool{"bad": true}}
	e := New(p)
	e.batchSize = 2

	vecs, err := e.EmbedBatch(context.Background(), []string{"good", "bad"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := CosineSimilarity(a, a); got < 0.999 {
		t.Errorf("CosineSimilarity(a, a) = %v, want ~1", got)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("CosineSimilarity(orthogonal) = %v, want 0", got)
	}
}

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("CosineSimilarity(mismatched) = %v, want 0", got)
	}
}
