package chunker

import (
	"strings"
	"testing"

	"github.com/groundrag/groundrag/parser"
)

// ---------------------------------------------------------------------------
// New / Config defaults
// ---------------------------------------------------------------------------

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.cfg.ChunkSize != 512 {
		t.Errorf("default ChunkSize = %d, want 512", c.cfg.ChunkSize)
	}
	if c.cfg.Overlap != 0 {
		t.Errorf("default Overlap = %d, want 0 (zero by default)", c.cfg.Overlap)
	}
	if c.cfg.MinChars != 100 {
		t.Errorf("default MinChars = %d, want 100", c.cfg.MinChars)
	}
}

func TestNewCustomConfig(t *testing.T) {
	c := New(Config{ChunkSize: 256, Overlap: 32, MinChars: 50})
	if c.cfg.ChunkSize != 256 {
		t.Errorf("ChunkSize = %d, want 256", c.cfg.ChunkSize)
	}
	if c.cfg.Overlap != 32 {
		t.Errorf("Overlap = %d, want 32", c.cfg.Overlap)
	}
	if c.cfg.MinChars != 50 {
		t.Errorf("MinChars = %d, want 50", c.cfg.MinChars)
	}
}

// ---------------------------------------------------------------------------
// IsStructuralFormat / dispatch
// ---------------------------------------------------------------------------

func TestIsStructuralFormat(t *testing.T) {
	structural := []string{"pdf", "txt", "doc", "xls", "ppt", "png", "jpg", "jpeg"}
	for _, f := range structural {
		if !IsStructuralFormat(f) {
			t.Errorf("IsStructuralFormat(%q) = false, want true", f)
		}
	}

	structured := []string{"docx", "xlsx", "html", "htm", "md"}
	for _, f := range structured {
		if IsStructuralFormat(f) {
			t.Errorf("IsStructuralFormat(%q) = true, want false", f)
		}
	}
}

func TestChunkDispatchesByFormat(t *testing.T) {
	c := New(Config{})

	structuralSections := []parser.Section{
		{Content: "Plain extracted page text.", PageNumber: 1, Type: "paragraph"},
	}
	for _, ch := range c.Chunk("pdf", structuralSections) {
		if ch.StructuralRole != "PARAGRAPH" {
			t.Errorf("structural chunk role = %q, want PARAGRAPH", ch.StructuralRole)
		}
	}

	structuredSections := []parser.Section{
		{Heading: "Scope", Level: 1, Type: "heading"},
		{Heading: "Scope", Content: "The scope of this document.", Level: 1, Type: "paragraph"},
	}
	chunks := c.Chunk("docx", structuredSections)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks from structured dispatch, got %d", len(chunks))
	}
	if chunks[0].StructuralRole != "HEADING" {
		t.Errorf("first structured chunk role = %q, want HEADING", chunks[0].StructuralRole)
	}
}

// ---------------------------------------------------------------------------
// ChunkStructural — flat, character-boundary chunker (PDF/TXT/fallback)
// ---------------------------------------------------------------------------

func TestChunkStructuralIgnoresHeadings(t *testing.T) {
	c := New(Config{ChunkSize: 512})
	sections := []parser.Section{
		// A structural-format section may still carry a Heading (set by an
		// upstream extractor); the flat chunker must ignore it.
		{Heading: "Should be ignored", Content: "Body text that should become a paragraph chunk.", PageNumber: 2, Type: "paragraph"},
	}

	chunks := c.ChunkStructural(sections)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StructuralRole != "PARAGRAPH" {
		t.Errorf("role = %q, want PARAGRAPH", chunks[0].StructuralRole)
	}
	if chunks[0].Heading != "" {
		t.Errorf("Heading = %q, want empty (flat chunker never carries a heading)", chunks[0].Heading)
	}
	if chunks[0].PageNumber != 2 {
		t.Errorf("PageNumber = %d, want 2", chunks[0].PageNumber)
	}
}

func TestChunkStructuralFlushesOnCharacterBoundary(t *testing.T) {
	c := New(Config{ChunkSize: 100, MinChars: 1})

	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, strings.Repeat("x", 30))
	}
	content := strings.Join(paras, "\n\n") // 10 paragraphs * 30 chars, way over 100

	sections := []parser.Section{{Content: content, Type: "paragraph"}}
	chunks := c.ChunkStructural(sections)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks once the 100-char buffer overflows, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch.Content) > 100+30 { // allow one paragraph's worth of slack
			t.Errorf("chunk[%d] length %d exceeds ChunkSize by more than one paragraph", i, len(ch.Content))
		}
	}
}

func TestChunkStructuralZeroOverlapByDefault(t *testing.T) {
	c := New(Config{ChunkSize: 50, MinChars: 1})

	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, strings.Repeat(string(rune('a'+i)), 20))
	}
	content := strings.Join(paras, "\n\n")

	sections := []parser.Section{{Content: content, Type: "paragraph"}}
	chunks := c.ChunkStructural(sections)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// With zero overlap, no chunk after the first should start with the
	// tail of the previous chunk's content.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		cur := chunks[i].Content
		tail := tailChars(prev, 10)
		if tail != "" && strings.HasPrefix(cur, tail) {
			t.Errorf("chunk[%d] unexpectedly starts with the previous chunk's tail; overlap should be zero by default", i)
		}
	}
}

func TestChunkStructuralOverlapWhenConfigured(t *testing.T) {
	c := New(Config{ChunkSize: 50, Overlap: 10, MinChars: 1})

	var paras []string
	for i := 0; i < 6; i++ {
		paras = append(paras, strings.Repeat("b", 20))
	}
	content := strings.Join(paras, "\n\n")

	sections := []parser.Section{{Content: content, Type: "paragraph"}}
	chunks := c.ChunkStructural(sections)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

func TestChunkStructuralSubSplitsOversizedParagraph(t *testing.T) {
	c := New(Config{ChunkSize: 40, MinChars: 1})

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("This is sentence number here. ")
	}

	sections := []parser.Section{{Content: sb.String(), Type: "paragraph"}}
	chunks := c.ChunkStructural(sections)
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized paragraph to sub-split on sentence boundaries, got %d chunks", len(chunks))
	}
}

func TestChunkStructuralKeepsTablesAtomic(t *testing.T) {
	c := New(Config{ChunkSize: 512})
	sections := []parser.Section{
		{Content: "Intro text.\n| A | B |\n| --- | --- |\n| 1 | 2 |\nOutro text.", Type: "paragraph"},
	}
	chunks := c.ChunkStructural(sections)

	foundTable := false
	for _, ch := range chunks {
		if strings.Contains(ch.Content, "| A | B |") {
			foundTable = true
			if !strings.Contains(ch.Content, "| 1 | 2 |") {
				t.Error("table chunk should keep header and row rows together")
			}
		}
	}
	if !foundTable {
		t.Error("expected a chunk containing the table")
	}
}

// ---------------------------------------------------------------------------
// ChunkStructured — per-structural-unit chunker (DOCX/HTML/Markdown)
// ---------------------------------------------------------------------------

func TestChunkStructuredHeadingOnlyBecomesHeadingChunk(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{Heading: "Introduction", Level: 1, Type: "heading"},
	}

	chunks := c.ChunkStructured(sections)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.StructuralRole != "HEADING" {
		t.Errorf("role = %q, want HEADING", ch.StructuralRole)
	}
	if ch.ConfidenceWeight != 1.2 {
		t.Errorf("heading ConfidenceWeight = %v, want 1.2", ch.ConfidenceWeight)
	}
	if ch.HeadingLevel != 1 {
		t.Errorf("HeadingLevel = %d, want 1", ch.HeadingLevel)
	}
}

func TestChunkStructuredInheritsHeading(t *testing.T) {
	c := New(Config{MinChars: 1})
	sections := []parser.Section{
		{Heading: "Scope", Level: 1, Type: "heading"},
		{Heading: "Scope", Content: "The scope of this document covers requirements.", Level: 1, Type: "paragraph"},
		{Heading: "Scope", Content: "A list item under the same heading.", Level: 1, Type: "list_item"},
	}

	chunks := c.ChunkStructured(sections)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks[1:] {
		if ch.Heading != "Scope" {
			t.Errorf("chunk[%d].Heading = %q, want %q (inherited)", i+1, ch.Heading, "Scope")
		}
	}
	if chunks[2].StructuralRole != "LIST_ITEM" {
		t.Errorf("list item role = %q, want LIST_ITEM", chunks[2].StructuralRole)
	}
}

func TestChunkStructuredTableCellRole(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{Heading: "Sheet1", Content: "42", Type: "table"},
	}
	chunks := c.ChunkStructured(sections)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StructuralRole != "TABLE_CELL" {
		t.Errorf("role = %q, want TABLE_CELL", chunks[0].StructuralRole)
	}
}

func TestChunkStructuredSplitsOversizedSection(t *testing.T) {
	c := New(Config{ChunkSize: 40, MinChars: 1})
	sections := []parser.Section{
		{Heading: "Long", Content: strings.Repeat("Word after word. ", 12), Level: 1, Type: "paragraph"},
	}
	chunks := c.ChunkStructured(sections)
	if len(chunks) < 2 {
		t.Fatalf("expected an oversized section to split into multiple chunks, got %d", len(chunks))
	}
}

// ---------------------------------------------------------------------------
// Small-chunk merge
// ---------------------------------------------------------------------------

func TestMergeSmallChunksBackward(t *testing.T) {
	c := New(Config{MinChars: 100})
	sections := []parser.Section{
		{Heading: "Intro", Content: strings.Repeat("x", 150), Level: 1, Type: "paragraph"},
		{Heading: "Intro", Content: "short.", Level: 1, Type: "paragraph"},
	}
	chunks := c.ChunkStructured(sections)
	if len(chunks) != 1 {
		t.Fatalf("expected the short trailing chunk to merge into the preceding one, got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "short.") {
		t.Error("merged chunk should contain the short fragment's text")
	}
}

func TestMergeSmallChunksNeverMergesHeadings(t *testing.T) {
	c := New(Config{MinChars: 100})
	sections := []parser.Section{
		{Heading: "A", Level: 1, Type: "heading"},
		{Heading: "A", Content: strings.Repeat("y", 150), Level: 1, Type: "paragraph"},
	}
	chunks := c.ChunkStructured(sections)
	if len(chunks) != 2 {
		t.Fatalf("expected the heading chunk to survive unmerged, got %d chunks", len(chunks))
	}
	if chunks[0].StructuralRole != "HEADING" {
		t.Error("first chunk should remain the heading chunk")
	}
}

// ---------------------------------------------------------------------------
// Metadata / hashing / position tracking
// ---------------------------------------------------------------------------

func TestChunkPreservesMetadata(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{
			Heading: "Sheet1",
			Content: "42",
			Type:    "table",
			Metadata: map[string]string{
				"sheet_name": "Sheet1",
				"row":        "1",
			},
		},
	}

	chunks := c.ChunkStructured(sections)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if !strings.Contains(chunks[0].Metadata, "Sheet1") {
		t.Errorf("Metadata should contain 'Sheet1', got %q", chunks[0].Metadata)
	}
}

func TestChunkNilMetadata(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{{Content: "Content without metadata.", Type: "paragraph"}}

	chunks := c.ChunkStructural(sections)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if chunks[0].Metadata != "{}" {
		t.Errorf("expected Metadata = \"{}\" for nil metadata, got %q", chunks[0].Metadata)
	}
}

func TestChunkPositionInDoc(t *testing.T) {
	c := New(Config{})
	sections := []parser.Section{
		{Content: "Content A.", Type: "paragraph", PageNumber: 1},
		{Content: "Content B.", Type: "paragraph", PageNumber: 2},
		{Content: "Content C.", Type: "paragraph", PageNumber: 3},
	}

	chunks := c.ChunkStructural(sections)

	prevPos := -1
	for i, ch := range chunks {
		if ch.PositionInDoc <= prevPos {
			t.Errorf("chunk[%d].PositionInDoc = %d, expected > %d", i, ch.PositionInDoc, prevPos)
		}
		prevPos = ch.PositionInDoc
	}
}

func TestChunkEmptySections(t *testing.T) {
	c := New(Config{})
	if chunks := c.Chunk("pdf", nil); len(chunks) != 0 {
		t.Errorf("expected 0 chunks for nil sections, got %d", len(chunks))
	}
	if chunks := c.Chunk("pdf", []parser.Section{}); len(chunks) != 0 {
		t.Errorf("expected 0 chunks for empty sections, got %d", len(chunks))
	}
}

func TestContentHash(t *testing.T) {
	hash1 := contentHash("hello world")
	hash2 := contentHash("hello world")
	hash3 := contentHash("different content")

	if hash1 != hash2 {
		t.Error("identical content should produce identical hashes")
	}
	if hash1 == hash3 {
		t.Error("different content should produce different hashes")
	}
	if len(hash1) != 64 {
		t.Errorf("SHA-256 hex digest should be 64 chars, got %d", len(hash1))
	}
}

func TestMarshalMeta(t *testing.T) {
	if result := marshalMeta(nil); result != "{}" {
		t.Errorf("marshalMeta(nil) = %q, want %q", result, "{}")
	}
	if result := marshalMeta(map[string]string{}); result != "{}" {
		t.Errorf("marshalMeta(empty) = %q, want %q", result, "{}")
	}
	result := marshalMeta(map[string]string{"key": "value"})
	if !strings.Contains(result, "key") || !strings.Contains(result, "value") {
		t.Errorf("marshalMeta with data = %q, expected key/value", result)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single_word", "hello", 2},               // ceil(1 * 1.3) = 2
		{"two_words", "hello world", 3},            // ceil(2 * 1.3) = 3
		{"ten_words", "a b c d e f g h i j", 13},    // ceil(10 * 1.3) = 13
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateTokens(tt.text)
			if got != tt.want {
				t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestTailChars(t *testing.T) {
	if got := tailChars("hello", 10); got != "hello" {
		t.Errorf("tailChars with n > len(s) = %q, want %q", got, "hello")
	}
	if got := tailChars("hello world", 5); got != "world" {
		t.Errorf("tailChars(%q, 5) = %q, want %q", "hello world", got, "world")
	}
}

// ---------------------------------------------------------------------------
// Role / type classification
// ---------------------------------------------------------------------------

func TestRoleFromSectionType(t *testing.T) {
	tests := []struct {
		sectionType string
		want        string
	}{
		{"table", "TABLE_CELL"},
		{"code", "CODE_BLOCK"},
		{"caption", "CAPTION"},
		{"footnote", "FOOTNOTE"},
		{"quote", "QUOTE"},
		{"list_item", "LIST_ITEM"},
		{"paragraph", "PARAGRAPH"},
		{"", "PARAGRAPH"},
	}
	for _, tt := range tests {
		if got := roleFromSectionType(tt.sectionType); got != tt.want {
			t.Errorf("roleFromSectionType(%q) = %q, want %q", tt.sectionType, got, tt.want)
		}
	}
}

func TestChunkTypeFromSection(t *testing.T) {
	tests := []struct {
		sectionType string
		want        string
	}{
		{"table", "table"},
		{"definition", "definition"},
		{"requirement", "requirement"},
		{"paragraph", "paragraph"},
		{"unknown", "paragraph"},
		{"", "paragraph"},
	}
	for _, tt := range tests {
		sec := parser.Section{Type: tt.sectionType}
		if got := chunkTypeFromSection(sec); got != tt.want {
			t.Errorf("chunkTypeFromSection(Type=%q) = %q, want %q", tt.sectionType, got, tt.want)
		}
	}
}

func TestConfidenceWeight(t *testing.T) {
	if w := confidenceWeight("HEADING", "Anything"); w != 1.2 {
		t.Errorf("HEADING weight = %v, want 1.2", w)
	}
	if w := confidenceWeight("PARAGRAPH", "The system shall comply."); w != 1.1 {
		t.Errorf("requirement weight = %v, want 1.1", w)
	}
	if w := confidenceWeight("PARAGRAPH", "Ordinary prose."); w != 1.0 {
		t.Errorf("baseline weight = %v, want 1.0", w)
	}
}

// ---------------------------------------------------------------------------
// Requirements / standards-reference helpers (chunker/engineering.go)
// ---------------------------------------------------------------------------

func TestDetectRequirements(t *testing.T) {
	text := `The system shall operate at temperatures from -40C to 85C.
The contractor must provide documentation.
The system should support failover.
Users may optionally configure alerts.
This line has no requirements.`

	reqs := DetectRequirements(text)
	if len(reqs) < 4 {
		t.Fatalf("expected at least 4 requirements, got %d", len(reqs))
	}

	levelMap := map[string]string{
		"SHALL":  "mandatory",
		"MUST":   "mandatory",
		"SHOULD": "recommended",
		"MAY":    "optional",
	}
	for _, req := range reqs {
		if expectedLevel, ok := levelMap[req.Keyword]; ok && req.Level != expectedLevel {
			t.Errorf("requirement keyword %q has level %q, want %q", req.Keyword, req.Level, expectedLevel)
		}
	}
}

func TestDetectRequirementsEmpty(t *testing.T) {
	if reqs := DetectRequirements("No normative language here."); len(reqs) != 0 {
		t.Errorf("expected 0 requirements, got %d", len(reqs))
	}
}

func TestIsRequirement(t *testing.T) {
	if !IsRequirement("The system shall perform validation.") {
		t.Error("expected IsRequirement = true for 'shall'")
	}
	if !IsRequirement("Users MUST authenticate.") {
		t.Error("expected IsRequirement = true for 'MUST'")
	}
	if IsRequirement("This is a regular sentence.") {
		t.Error("expected IsRequirement = false for regular text")
	}
}

func TestDetectStandardsReferences(t *testing.T) {
	text := `The system complies with ISO 9001:2015 and IEEE 802.11.
Materials per ASTM D1234 and MIL-STD-810G.`

	refs := DetectStandardsReferences(text)
	if len(refs) < 3 {
		t.Fatalf("expected at least 3 standards references, got %d", len(refs))
	}
}

func TestDetectStandardsReferencesEmpty(t *testing.T) {
	if refs := DetectStandardsReferences("No standards referenced here."); len(refs) != 0 {
		t.Errorf("expected 0 references, got %d", len(refs))
	}
}

func TestHasStandardsReference(t *testing.T) {
	if !HasStandardsReference("Per ISO 9001 requirements.") {
		t.Error("expected true for ISO reference")
	}
	if HasStandardsReference("No standards here.") {
		t.Error("expected false for no standards")
	}
}

func TestDetectTables(t *testing.T) {
	text := "Some intro text.\n| A | B | C |\n| --- | --- | --- |\n| 1 | 2 | 3 |\nMore text."

	tables := DetectTables(text)
	if len(tables) == 0 {
		t.Fatal("expected at least 1 table detected")
	}
	if !tables[0].HasHeaders {
		t.Error("expected HasHeaders = true for markdown table with separator")
	}
}

func TestPreserveTableChunks(t *testing.T) {
	text := "Before table.\n| A | B |\n| --- | --- |\n| 1 | 2 |\nAfter table."

	fragments := PreserveTableChunks(text)
	if len(fragments) < 2 {
		t.Fatalf("expected at least 2 fragments (prose + table), got %d", len(fragments))
	}

	foundTable := false
	for _, f := range fragments {
		if strings.Contains(f, "| A | B |") && strings.Contains(f, "| 1 | 2 |") {
			foundTable = true
		}
	}
	if !foundTable {
		t.Error("expected to find an atomic table fragment")
	}
}

func TestPreserveTableChunksNoTable(t *testing.T) {
	text := "Plain text with no tables at all."
	fragments := PreserveTableChunks(text)
	if len(fragments) != 1 {
		t.Errorf("expected 1 fragment for text without tables, got %d", len(fragments))
	}
	if fragments[0] != text {
		t.Errorf("fragment should be the original text")
	}
}

// ---------------------------------------------------------------------------
// Structure helpers (chunker/structure.go)
// ---------------------------------------------------------------------------

func TestIsHeading(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"numbered_single", "1. Introduction", true},
		{"numbered_multi", "1.2. Requirements", true},
		{"all_caps", "INTRODUCTION", true},
		{"markdown_h1", "# Main Title", true},
		{"regular_text", "This is a normal sentence.", false},
		{"empty", "", false},
		{"short_caps", "AB", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHeading(tt.line); got != tt.want {
				t.Errorf("IsHeading(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"table_pipes", "| Col1 | Col2 | Col3 |\n| --- | --- | --- |\n| a | b | c |", "table"},
		{"definition_means", `"Force Majeure" means any event beyond control.`, "definition"},
		{"requirement_shall", "The system SHALL operate continuously.", "requirement"},
		{"plain_paragraph", "This is just a regular paragraph of text.", "paragraph"},
		{"empty", "", "paragraph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentType(tt.text); got != tt.want {
				t.Errorf("ContentType(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectNumbering(t *testing.T) {
	tests := []struct {
		line    string
		wantNum string
		wantOK  bool
	}{
		{"1. Introduction", "1", true},
		{"1.2. Details", "1.2", true},
		{"Regular text", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		num, ok := DetectNumbering(tt.line)
		if ok != tt.wantOK || num != tt.wantNum {
			t.Errorf("DetectNumbering(%q) = (%q, %v), want (%q, %v)", tt.line, num, ok, tt.wantNum, tt.wantOK)
		}
	}
}

func TestNumberingLevel(t *testing.T) {
	tests := []struct {
		numbering string
		want      int
	}{
		{"1", 1},
		{"1.2", 2},
		{"1.2.3", 3},
		{"", 0},
	}

	for _, tt := range tests {
		if got := NumberingLevel(tt.numbering); got != tt.want {
			t.Errorf("NumberingLevel(%q) = %d, want %d", tt.numbering, got, tt.want)
		}
	}
}
