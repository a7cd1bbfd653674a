package grounding

import (
	"regexp"
	"strconv"
	"strings"

	groundctx "github.com/groundrag/groundrag/context"
)

// extractiveQuote matches a quoted claim immediately followed by its
// citation marker, e.g. `"the system shall log every request" [1]`.
var extractiveQuote = regexp.MustCompile(`"([^"]+)"\s*\[(\d+)\]`)

// ExtractiveQuote is one quote-plus-citation pair pulled from an answer
// produced in extractive mode.
type ExtractiveQuote struct {
	Quote    string `json:"quote"`
	ChunkRef int    `json:"chunk_ref"` // 1-based, as written in the answer
	Verified bool   `json:"verified"`
}

// ExtractiveResult is the aggregate verdict for an extractive-mode answer.
type ExtractiveResult struct {
	Quotes       []ExtractiveQuote `json:"quotes"`
	AllVerified  bool              `json:"all_verified"`
}

// ValidateExtractive verifies every `"quote" [k]` pair in answer by
// checking the quote is a case-insensitive substring of chunk k's
// content. An answer with no quotes at all verifies vacuously true.
func ValidateExtractive(answer string, chunks []groundctx.Chunk) ExtractiveResult {
	matches := extractiveQuote.FindAllStringSubmatch(answer, -1)
	result := ExtractiveResult{AllVerified: true}

	for _, m := range matches {
		quote := m[1]
		ref, _ := strconv.Atoi(m[2])
		q := ExtractiveQuote{Quote: quote, ChunkRef: ref}

		idx := ref - 1
		if idx >= 0 && idx < len(chunks) {
			q.Verified = strings.Contains(strings.ToLower(chunks[idx].Content), strings.ToLower(quote))
		}
		if !q.Verified {
			result.AllVerified = false
		}
		result.Quotes = append(result.Quotes, q)
	}

	return result
}
