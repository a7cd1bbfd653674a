//go:build integration && cgo

package groundrag

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	ollamaURL   = "http://localhost:11434"
	chatModel   = "qwen3:8b"
	embedModel  = "qwen3-embedding"
	embedDim    = 4096
	testTimeout = 10 * time.Minute
)

// shared holds the engine and ingested document ID set up once for all tests.
var shared struct {
	once    sync.Once
	eng     Engine
	docID   int64
	docPath string
	dbDir   string
	err     error
}

func ollamaAvailable() bool {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(ollamaURL + "/api/tags")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// warmModel sends a tiny request to force Ollama to load a model into memory.
func warmModel(model string) error {
	body := fmt.Sprintf(`{"model":%q,"messages":[{"role":"user","content":"hi"}],"stream":false,"options":{"num_predict":1}}`, model)
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(ollamaURL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// warmEmbedModel sends a tiny embedding request.
func warmEmbedModel(model string) error {
	body := fmt.Sprintf(`{"model":%q,"input":["test"]}`, model)
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(ollamaURL+"/api/embed", "application/json", strings.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func testConfig(dbPath string) Config {
	return Config{
		DBPath: dbPath,
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    chatModel,
			BaseURL:  ollamaURL,
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    embedModel,
			BaseURL:  ollamaURL,
		},
		EmbeddingDim:           embedDim,
		WeightBM25:             0.3,
		WeightDense:            0.5,
		WeightStructural:       0.2,
		ChunkSize:              512,
		ChunkOverlap:           64,
		TopKRetrieval:          10,
		MinGroundingConfidence: 0.3,
		MaxGenerationTokens:    512,
	}
}

// setupShared creates the shared engine and ingests the test document once.
func setupShared(t *testing.T) {
	t.Helper()
	shared.once.Do(func() {
		if !ollamaAvailable() {
			shared.err = fmt.Errorf("ollama not available")
			return
		}

		t.Log("Warming up embedding model...")
		if err := warmEmbedModel(embedModel); err != nil {
			shared.err = fmt.Errorf("warming embed model: %w", err)
			return
		}
		t.Log("Warming up chat model...")
		if err := warmModel(chatModel); err != nil {
			shared.err = fmt.Errorf("warming chat model: %w", err)
			return
		}

		dir, err := os.MkdirTemp("", "groundrag-integration-*")
		if err != nil {
			shared.err = err
			return
		}
		shared.dbDir = dir

		eng, err := New(testConfig(filepath.Join(dir, "integration_test.db")))
		if err != nil {
			shared.err = fmt.Errorf("creating engine: %w", err)
			return
		}
		shared.eng = eng

		docPath := createTestDOCX(dir)
		shared.docPath = docPath

		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()

		t.Log("Ingesting test document...")
		docID, err := eng.Ingest(ctx, docPath)
		if err != nil {
			shared.err = fmt.Errorf("ingesting document: %w", err)
			eng.Close()
			return
		}
		shared.docID = docID
		t.Logf("Document ingested: ID=%d", docID)
	})
}

func skipOrSetup(t *testing.T) {
	t.Helper()
	setupShared(t)
	if shared.err != nil {
		t.Skipf("shared setup failed: %v", shared.err)
	}
}

// createTestDOCX creates a minimal DOCX file with engineering content.
func createTestDOCX(dir string) string {
	path := filepath.Join(dir, "spec-doc.docx")

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	ct, _ := w.Create("[Content_Types].xml")
	ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`))

	rels, _ := w.Create("_rels/.rels")
	rels.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`))

	doc, _ := w.Create("word/document.xml")
	doc.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading1"/></w:pPr>
      <w:r><w:t>Material Specifications</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>This document defines the material requirements for the structural components used in the bridge construction project. All materials shall comply with ISO 9001 quality management standards.</w:t></w:r>
    </w:p>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading2"/></w:pPr>
      <w:r><w:t>Section 3.2 Tensile Strength Requirements</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>The minimum tensile strength for Grade A structural steel shall be 500 MPa as measured according to ASTM D638 testing procedures. Each batch of material must be tested and certified before use on site.</w:t></w:r>
    </w:p>
    <w:p>
      <w:pPr><w:pStyle w:val="Heading2"/></w:pPr>
      <w:r><w:t>Section 4.1 Definitions</w:t></w:r>
    </w:p>
    <w:p>
      <w:r><w:t>"Force Majeure" means any event or circumstance beyond the reasonable control of a party, including but not limited to acts of God, war, terrorism, pandemic, earthquake, flood, or government action that prevents a party from performing its obligations under this contract.</w:t></w:r>
    </w:p>
  </w:body>
</w:document>`))

	w.Close()
	os.WriteFile(path, buf.Bytes(), 0644)
	return path
}

// --- Engine creation tests ---

func TestIntegrationEngineNew(t *testing.T) {
	if !ollamaAvailable() {
		t.Skip("Ollama not reachable")
	}

	dir := t.TempDir()
	eng, err := New(testConfig(filepath.Join(dir, "test.db")))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer eng.Close()

	docs, err := eng.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected 0 documents in fresh DB, got %d", len(docs))
	}
}

func TestIntegrationIngestDOCX(t *testing.T) {
	skipOrSetup(t)

	if shared.docID <= 0 {
		t.Fatalf("expected valid docID, got %d", shared.docID)
	}

	ctx := context.Background()
	docs, err := shared.eng.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) < 1 {
		t.Fatalf("expected at least 1 document, got %d", len(docs))
	}

	doc := docs[0]
	if doc.Format != "docx" {
		t.Errorf("document format: got %q, want %q", doc.Format, "docx")
	}
	if doc.Status != "ready" {
		t.Errorf("document status: got %q, want %q", doc.Status, "ready")
	}
	if doc.Filename != "spec-doc.docx" {
		t.Errorf("document filename: got %q, want %q", doc.Filename, "spec-doc.docx")
	}
}

func TestIntegrationIngestIdempotent(t *testing.T) {
	skipOrSetup(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	id2, err := shared.eng.Ingest(ctx, shared.docPath)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if shared.docID != id2 {
		t.Errorf("idempotent Ingest: got different IDs %d vs %d", shared.docID, id2)
	}
}

// --- Query tests ---

func TestIntegrationQueryTensileStrength(t *testing.T) {
	skipOrSetup(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	answer, noAnswer, err := shared.eng.Query(ctx, "What is the minimum tensile strength requirement?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if noAnswer != nil {
		t.Fatalf("expected grounded answer, got refusal: %+v", noAnswer)
	}
	if answer.Text == "" {
		t.Fatal("Query returned empty answer text")
	}
	if answer.ModelUsed == "" {
		t.Error("expected ModelUsed to be set")
	}
	if len(answer.Sources) == 0 {
		t.Error("expected at least one source in the answer")
	}

	lowerAnswer := strings.ToLower(answer.Text)
	if !strings.Contains(lowerAnswer, "500") {
		t.Errorf("answer should mention 500 MPa, got: %s", answer.Text)
	}

	t.Logf("Answer: %s", answer.Text)
	t.Logf("GroundingScore: %.2f, Sources: %d", answer.GroundingScore, len(answer.Sources))
}

func TestIntegrationQueryForceMajeure(t *testing.T) {
	skipOrSetup(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	answer, noAnswer, err := shared.eng.Query(ctx, "What is the definition of Force Majeure?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if noAnswer != nil {
		t.Fatalf("expected grounded answer, got refusal: %+v", noAnswer)
	}

	lowerAnswer := strings.ToLower(answer.Text)
	if !strings.Contains(lowerAnswer, "control") && !strings.Contains(lowerAnswer, "event") {
		t.Errorf("answer should describe force majeure, got: %s", answer.Text)
	}

	t.Logf("Answer: %s", answer.Text)
}

func TestIntegrationQueryNoResults(t *testing.T) {
	if !ollamaAvailable() {
		t.Skip("Ollama not reachable")
	}

	dir := t.TempDir()
	eng, err := New(testConfig(filepath.Join(dir, "empty.db")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, noAnswer, err := eng.Query(ctx, "What is the tensile strength?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if answer != nil {
		t.Fatalf("expected refusal querying empty database, got answer: %+v", answer)
	}
	if noAnswer == nil {
		t.Fatal("expected NoAnswerResponse querying empty database")
	}
}

func TestIntegrationAnswerStructure(t *testing.T) {
	skipOrSetup(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	answer, noAnswer, err := shared.eng.Query(ctx, "What is the minimum tensile strength requirement?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if noAnswer != nil {
		t.Fatalf("expected grounded answer, got refusal: %+v", noAnswer)
	}

	for _, src := range answer.Sources {
		if src.Citation == "" {
			t.Error("expected source citation to be set")
		}
		if src.Content == "" {
			t.Error("expected source content to be set")
		}
	}
}

func TestIntegrationUpdateNoChange(t *testing.T) {
	skipOrSetup(t)

	ctx := context.Background()
	changed, err := shared.eng.Update(ctx, shared.docPath)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed {
		t.Error("expected no change for unmodified document")
	}
}

func TestIntegrationDelete(t *testing.T) {
	if !ollamaAvailable() {
		t.Skip("Ollama not reachable")
	}

	dir := t.TempDir()
	eng, err := New(testConfig(filepath.Join(dir, "delete_test.db")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	docPath := createTestDOCX(dir)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	docID, err := eng.Ingest(ctx, docPath)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := eng.Delete(ctx, docID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	docs, err := eng.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	for _, d := range docs {
		if d.ID == docID {
			t.Error("expected document to be deleted")
		}
	}
}
