package grounding

import (
	"context"
	"testing"

	groundctx "github.com/groundrag/groundrag/context"
)

// stubEmbedder returns a fixed vector per text so tests can control
// similarity deterministically: texts sharing a key embed identically.
type stubEmbedder struct {
	vectors map[string][]float32
	def     []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return s.def, nil
}

func TestValidateEmptyAnswer(t *testing.T) {
	v := New(&stubEmbedder{def: []float32{1, 0}}, 0.7)
	result, err := v.Validate(context.Background(), "", []groundctx.Chunk{{ChunkID: 1, Content: "x"}})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Valid {
		t.Errorf("expected invalid for empty answer")
	}
}

func TestValidateExactMatch(t *testing.T) {
	chunks := []groundctx.Chunk{
		{ChunkID: 1, Content: "the retrieval engine fuses bm25 and dense scores before ranking."},
	}
	v := New(&stubEmbedder{def: []float32{1, 0}}, 0.7)

	result, err := v.Validate(context.Background(), "The retrieval engine fuses bm25 and dense scores before ranking.", chunks)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid || result.GroundingScore != 1.0 {
		t.Fatalf("expected fully grounded exact match, got %+v", result)
	}
	if result.SentenceResults[0].MatchType != Exact {
		t.Errorf("expected EXACT match type, got %v", result.SentenceResults[0].MatchType)
	}
}

func TestValidateCitedMatch(t *testing.T) {
	chunks := []groundctx.Chunk{
		{ChunkID: 7, Content: "answer sentence about the topic"},
	}
	shared := []float32{1, 0}
	v := New(&stubEmbedder{
		vectors: map[string][]float32{
			"answer sentence about the topic": shared,
		},
		def: shared,
	}, 0.7)

	result, err := v.Validate(context.Background(), "This claim is supported [1].", chunks)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected grounded via CITED, got %+v", result)
	}
	if result.SentenceResults[0].MatchType != Cited {
		t.Errorf("expected CITED match type, got %v", result.SentenceResults[0].MatchType)
	}
	if len(result.SentenceResults[0].MatchedChunks) != 1 || result.SentenceResults[0].MatchedChunks[0] != 7 {
		t.Errorf("expected matched chunk 7, got %+v", result.SentenceResults[0].MatchedChunks)
	}
}

func TestValidateUngroundedSentence(t *testing.T) {
	chunks := []groundctx.Chunk{
		{ChunkID: 1, Content: "completely unrelated filler content about gardening"},
	}
	v := New(&stubEmbedder{def: []float32{0, 0}}, 0.7)

	result, err := v.Validate(context.Background(), "The spacecraft achieved orbital velocity.", chunks)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Valid {
		t.Fatalf("expected ungrounded answer to be invalid, got %+v", result)
	}
	if result.SentenceResults[0].MatchType != Ungrounded {
		t.Errorf("expected UNGROUNDED match type, got %v", result.SentenceResults[0].MatchType)
	}
}

func TestRejectIfUngroundedBelowThreshold(t *testing.T) {
	result := &ValidationResult{GroundingScore: 0.4}
	reject, reason := RejectIfUngrounded(result, 0.7)
	if !reject || reason == "" {
		t.Errorf("expected rejection with reason, got reject=%v reason=%q", reject, reason)
	}
}

func TestRejectIfUngroundedPassesAboveThreshold(t *testing.T) {
	result := &ValidationResult{GroundingScore: 0.9}
	reject, _ := RejectIfUngrounded(result, 0.7)
	if reject {
		t.Errorf("expected no rejection above threshold")
	}
}
