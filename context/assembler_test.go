package context

import (
	"strings"
	"testing"

	"github.com/groundrag/groundrag/store"
)

func TestBuildDeduplicatesByPrefix(t *testing.T) {
	long := strings.Repeat("a", 150)
	results := []store.RetrievalResult{
		{ChunkID: 1, Content: long, Filename: "a.pdf"},
		{ChunkID: 2, Content: long + "tail", Filename: "a.pdf"},
	}

	_, chunks := New(4000).Build(results)
	if len(chunks) != 1 {
		t.Fatalf("expected duplicate chunk dropped, got %d chunks", len(chunks))
	}
}

func TestBuildAssignsSequentialMarkers(t *testing.T) {
	results := []store.RetrievalResult{
		{ChunkID: 1, Content: "first", Filename: "a.pdf"},
		{ChunkID: 2, Content: "second", Filename: "b.pdf"},
	}

	ctxStr, chunks := New(4000).Build(results)
	if chunks[0].Marker != "[1]" || chunks[1].Marker != "[2]" {
		t.Fatalf("expected sequential markers, got %+v", chunks)
	}
	if !strings.Contains(ctxStr, "[1] first") || !strings.Contains(ctxStr, "[2] second") {
		t.Fatalf("context string missing marker+content: %q", ctxStr)
	}
}

func TestBuildCitationIncludesPageAndHeading(t *testing.T) {
	r := store.RetrievalResult{Filename: "spec.pdf", PageNumber: 4, Heading: "Retrieval"}
	got := buildCitation(r)
	want := "spec.pdf | p.4 | §Retrieval"
	if got != want {
		t.Errorf("buildCitation() = %q, want %q", got, want)
	}
}

func TestBuildRespectsTokenBudget(t *testing.T) {
	results := []store.RetrievalResult{
		{ChunkID: 1, Content: strings.Repeat("x", 1000), Filename: "a.pdf"},
		{ChunkID: 2, Content: strings.Repeat("y", 1000), Filename: "b.pdf"},
	}

	_, chunks := New(500).Build(results)
	if len(chunks) != 1 {
		t.Fatalf("expected budget to cut off after first chunk, got %d", len(chunks))
	}
}

func TestBuildEmptyResults(t *testing.T) {
	ctxStr, chunks := New(4000).Build(nil)
	if ctxStr != "" || chunks != nil {
		t.Errorf("expected empty output for no results, got %q, %+v", ctxStr, chunks)
	}
}

func TestBuildGroundedPromptIncludesRulesAndCitationKey(t *testing.T) {
	chunks := []Chunk{{Marker: "[1]", Citation: "a.pdf | p.1"}}
	prompt := BuildGroundedPrompt("REFERENCE SOURCES...", "what is it?", chunks)

	for _, want := range []string{
		"ONLY the",
		"I cannot find this information in the provided sources.",
		"[1] = a.pdf | p.1",
		"QUESTION: what is it?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
