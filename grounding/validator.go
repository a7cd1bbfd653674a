// Package grounding implements the post-generation claim verifier: it
// splits a generated answer into sentences and classifies each against
// the retrieved context chunks using a cascade of matching strategies,
// from citation-backed similarity down to plain word overlap.
package grounding

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	groundctx "github.com/groundrag/groundrag/context"
	"github.com/groundrag/groundrag/embedding"
)

// MatchType identifies which cascade strategy grounded a sentence.
type MatchType string

const (
	Cited      MatchType = "CITED"
	Exact      MatchType = "EXACT"
	Paraphrase MatchType = "PARAPHRASE"
	Inferred   MatchType = "INFERRED"
	Ungrounded MatchType = "UNGROUNDED"
)

const (
	citedSimilarityThreshold      = 0.5
	exactMinResidueLength         = 20
	paraphraseOverlapThreshold    = 0.6
	inferredSimilarityThreshold   = 0.7
	defaultMinGroundingConfidence = 0.7
)

// GroundingResult is the classification of a single answer sentence.
type GroundingResult struct {
	Sentence        string    `json:"sentence"`
	Grounded        bool      `json:"grounded"`
	Confidence      float64   `json:"confidence"`
	MatchedChunks   []int64   `json:"matched_chunks"`
	MatchedExcerpts []string  `json:"matched_excerpts"`
	MatchType       MatchType `json:"match_type"`
}

// ValidationResult is the aggregate verdict over a whole answer.
type ValidationResult struct {
	Valid           bool              `json:"is_valid"`
	GroundingScore  float64           `json:"grounding_score"`
	SentenceResults []GroundingResult `json:"sentence_results"`
	Warnings        []string          `json:"warnings"`
	Errors          []string          `json:"errors"`
}

// Embedder is the subset of embedding.Embedder the validator depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Validator runs the grounding cascade over generated answers.
type Validator struct {
	embedder      Embedder
	minConfidence float64
}

func New(embedder Embedder, minConfidence float64) *Validator {
	if minConfidence <= 0 {
		minConfidence = defaultMinGroundingConfidence
	}
	return &Validator{embedder: embedder, minConfidence: minConfidence}
}

var citationInAnswer = regexp.MustCompile(`\[\d+\]`)

// Validate classifies every sentence in answer against chunks and
// aggregates the result. An empty answer or chunk list is reported as
// invalid rather than erroring, matching the orchestrator's
// zero-sentence boundary case.
func (v *Validator) Validate(ctx context.Context, answer string, chunks []groundctx.Chunk) (*ValidationResult, error) {
	if answer == "" || len(chunks) == 0 {
		return &ValidationResult{
			Valid:    false,
			Warnings: []string{"empty answer or context"},
		}, nil
	}

	sentences := SplitSentences(answer)
	if len(sentences) == 0 {
		return &ValidationResult{Valid: false}, nil
	}

	embedCache := make(map[int64][]float32, len(chunks))
	results := make([]GroundingResult, 0, len(sentences))

	for _, sentence := range sentences {
		r, err := v.validateSentence(ctx, sentence, chunks, embedCache)
		if err != nil {
			return nil, fmt.Errorf("validating sentence: %w", err)
		}
		results = append(results, r)
	}

	grounded := 0
	for _, r := range results {
		if r.Grounded {
			grounded++
		}
	}
	score := float64(grounded) / float64(len(results))

	var warnings, errs []string
	if grounded < len(results) {
		warnings = append(warnings, fmt.Sprintf("%d sentence(s) could not be verified", len(results)-grounded))
	}
	if score < 0.5 {
		errs = append(errs, "less than 50% of the answer is grounded in sources")
	}
	if !citationInAnswer.MatchString(answer) {
		warnings = append(warnings, "answer contains no citation markers")
	}

	return &ValidationResult{
		Valid:           score >= v.minConfidence && len(errs) == 0,
		GroundingScore:  score,
		SentenceResults: results,
		Warnings:        warnings,
		Errors:          errs,
	}, nil
}

func (v *Validator) validateSentence(ctx context.Context, sentence string, chunks []groundctx.Chunk, embedCache map[int64][]float32) (GroundingResult, error) {
	sentenceEmb, err := v.embedder.Embed(ctx, sentence)
	if err != nil {
		return GroundingResult{}, fmt.Errorf("embedding sentence: %w", err)
	}

	// 1. CITED: any referenced chunk whose content is similar enough.
	for _, num := range citationNumbers(sentence) {
		idx := num - 1
		if idx < 0 || idx >= len(chunks) {
			continue
		}
		chunk := chunks[idx]
		chunkEmb, err := v.embeddingFor(ctx, chunk, embedCache)
		if err != nil {
			return GroundingResult{}, err
		}
		sim := embedding.CosineSimilarity(sentenceEmb, chunkEmb)
		if sim > citedSimilarityThreshold {
			return GroundingResult{
				Sentence:        sentence,
				Grounded:        true,
				Confidence:      sim,
				MatchedChunks:   []int64{chunk.ChunkID},
				MatchedExcerpts: []string{findMatchingExcerpt(sentence, chunk.Content)},
				MatchType:       Cited,
			}, nil
		}
	}

	// 2. EXACT: citation-stripped residue is a verbatim substring.
	residue := stripCitationMarkers(sentence)
	if len(residue) >= exactMinResidueLength {
		lowerResidue := strings.ToLower(residue)
		for _, chunk := range chunks {
			if strings.Contains(strings.ToLower(chunk.Content), lowerResidue) {
				return GroundingResult{
					Sentence:        sentence,
					Grounded:        true,
					Confidence:      1.0,
					MatchedChunks:   []int64{chunk.ChunkID},
					MatchedExcerpts: []string{residue},
					MatchType:       Exact,
				}, nil
			}
		}
	}

	// 3. PARAPHRASE: best word-overlap score across all chunks.
	bestParaphraseScore, bestParaphraseChunk := 0.0, int64(0)
	for _, chunk := range chunks {
		score := wordOverlapScore(sentence, chunk.Content)
		if score > bestParaphraseScore {
			bestParaphraseScore = score
			bestParaphraseChunk = chunk.ChunkID
		}
	}
	if bestParaphraseScore > paraphraseOverlapThreshold {
		chunk := chunkByID(chunks, bestParaphraseChunk)
		return GroundingResult{
			Sentence:        sentence,
			Grounded:        true,
			Confidence:      bestParaphraseScore,
			MatchedChunks:   []int64{bestParaphraseChunk},
			MatchedExcerpts: []string{findMatchingExcerpt(sentence, chunk.Content)},
			MatchType:       Paraphrase,
		}, nil
	}

	// 4. INFERRED: best embedding cosine similarity across all chunks.
	bestSemanticScore, bestSemanticChunk := 0.0, int64(0)
	for _, chunk := range chunks {
		chunkEmb, err := v.embeddingFor(ctx, chunk, embedCache)
		if err != nil {
			return GroundingResult{}, err
		}
		sim := embedding.CosineSimilarity(sentenceEmb, chunkEmb)
		if sim > bestSemanticScore {
			bestSemanticScore = sim
			bestSemanticChunk = chunk.ChunkID
		}
	}
	if bestSemanticScore > inferredSimilarityThreshold {
		chunk := chunkByID(chunks, bestSemanticChunk)
		return GroundingResult{
			Sentence:        sentence,
			Grounded:        true,
			Confidence:      bestSemanticScore,
			MatchedChunks:   []int64{bestSemanticChunk},
			MatchedExcerpts: []string{findMatchingExcerpt(sentence, chunk.Content)},
			MatchType:       Inferred,
		}, nil
	}

	// 5. UNGROUNDED.
	confidence := bestParaphraseScore
	if bestSemanticScore > confidence {
		confidence = bestSemanticScore
	}
	return GroundingResult{
		Sentence:   sentence,
		Grounded:   false,
		Confidence: confidence,
		MatchType:  Ungrounded,
	}, nil
}

func (v *Validator) embeddingFor(ctx context.Context, chunk groundctx.Chunk, cache map[int64][]float32) ([]float32, error) {
	if e, ok := cache[chunk.ChunkID]; ok {
		return e, nil
	}
	e, err := v.embedder.Embed(ctx, chunk.Content)
	if err != nil {
		return nil, fmt.Errorf("embedding chunk %d: %w", chunk.ChunkID, err)
	}
	cache[chunk.ChunkID] = e
	return e, nil
}

func chunkByID(chunks []groundctx.Chunk, id int64) groundctx.Chunk {
	for _, c := range chunks {
		if c.ChunkID == id {
			return c
		}
	}
	return groundctx.Chunk{}
}

// RejectIfUngrounded decides whether the caller should see a refusal
// instead of the generated answer.
func RejectIfUngrounded(result *ValidationResult, minConfidence float64) (reject bool, reason string) {
	if len(result.Errors) > 0 {
		return true, result.Errors[0]
	}
	if result.GroundingScore < minConfidence {
		return true, fmt.Sprintf("answer grounding (%.0f%%) below threshold (%.0f%%)", result.GroundingScore*100, minConfidence*100)
	}
	return false, ""
}
