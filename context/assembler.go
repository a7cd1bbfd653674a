// Package context builds the text block handed to the generator: a
// deduplicated, citation-marked, token-budgeted window over retrieved
// chunks, plus the grounded-answer prompt wrapped around it.
package context

import (
	"fmt"
	"strings"

	"github.com/groundrag/groundrag/store"
)

// Chunk is a retrieved chunk after it has been assigned a citation
// marker for inclusion in a prompt.
type Chunk struct {
	Marker   string // e.g. "[1]"
	Content  string
	Citation string // e.g. "spec.pdf | p.4 | §Retrieval"
	ChunkID  int64
}

// Assembler packs retrieval results into a context string within a
// token budget, using a 4-chars-per-token estimate (the same heuristic
// the engine this was ported from uses).
type Assembler struct {
	maxTokens int
}

func New(maxTokens int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Assembler{maxTokens: maxTokens}
}

// Build deduplicates results by their first 100 characters, assigns
// sequential citation markers, and packs them into a context string
// until the token budget is exhausted.
func (a *Assembler) Build(results []store.RetrievalResult) (string, []Chunk) {
	if len(results) == 0 {
		return "", nil
	}

	seen := make(map[string]bool, len(results))
	unique := make([]store.RetrievalResult, 0, len(results))
	for _, r := range results {
		key := dedupeKey(r.Content)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}

	var parts []string
	var chunks []Chunk
	usedChars := 0

	for i, r := range unique {
		marker := fmt.Sprintf("[%d]", i+1)
		citation := buildCitation(r)
		formatted := marker + " " + r.Content

		if usedChars/4+len(formatted)/4 > a.maxTokens {
			break
		}

		parts = append(parts, formatted)
		usedChars += len(formatted)
		chunks = append(chunks, Chunk{
			Marker:   marker,
			Content:  r.Content,
			Citation: citation,
			ChunkID:  r.ChunkID,
		})
	}

	if len(parts) == 0 {
		return "", nil
	}

	header := "REFERENCE SOURCES (use citation markers in your answer):\n\n"
	return header + strings.Join(parts, "\n\n"), chunks
}

func dedupeKey(content string) string {
	if len(content) > 100 {
		return content[:100]
	}
	return content
}

func buildCitation(r store.RetrievalResult) string {
	parts := []string{r.Filename}
	if r.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("p.%d", r.PageNumber))
	}
	if r.Heading != "" {
		parts = append(parts, "§"+r.Heading)
	}
	return strings.Join(parts, " | ")
}

const groundedPromptTemplate = `You are a precise question-answering assistant. Answer using ONLY the
REFERENCE SOURCES below.

RULES:
1. Use only information from the sources.
2. Cite every claim with its marker, e.g. [1], [2].
3. If the sources do not contain the answer, reply exactly:
   "I cannot find this information in the provided sources."
4. Quote exact phrasing where practical.

%s

CITATION KEY:
%s

QUESTION: %s

ANSWER (with citations):`

// BuildGroundedPrompt wraps an assembled context string and its
// citation key around a question, enforcing source-only answers.
func BuildGroundedPrompt(contextStr, question string, chunks []Chunk) string {
	var key strings.Builder
	for _, c := range chunks {
		key.WriteString(c.Marker)
		key.WriteString(" = ")
		key.WriteString(c.Citation)
		key.WriteString("\n")
	}
	return fmt.Sprintf(groundedPromptTemplate, contextStr, strings.TrimRight(key.String(), "\n"), question)
}
