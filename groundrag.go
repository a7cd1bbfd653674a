// Package groundrag is a grounded question-answering engine: given a
// natural-language question and a corpus of ingested documents, it
// returns an answer whose every sentence is traceable to source
// excerpts, or an explicit refusal. Generation is followed by a
// sentence-level grounding validator that rejects responses the
// retrieved evidence does not support.
package groundrag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/groundrag/groundrag/chunker"
	groundctx "github.com/groundrag/groundrag/context"
	"github.com/groundrag/groundrag/embedding"
	"github.com/groundrag/groundrag/generator"
	"github.com/groundrag/groundrag/grounding"
	"github.com/groundrag/groundrag/parser"
	"github.com/groundrag/groundrag/retrieval"
	"github.com/groundrag/groundrag/store"
)

// Engine is the entry point for the grounded QA pipeline.
type Engine interface {
	// Ingest parses, chunks, and embeds a document. Returns the
	// document ID. Skips re-processing if the content hash is unchanged.
	Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error)

	// Query runs a question through hybrid retrieval, generation, and
	// grounding validation. Returns either an Answer or, when the
	// corpus has nothing relevant or the generated answer fails
	// grounding, a NoAnswerResponse.
	Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, *NoAnswerResponse, error)

	// QueryExtractive forces the generator into extractive mode
	// ("<quote>" [k] citations only) and verifies every quote against
	// its cited chunk.
	QueryExtractive(ctx context.Context, question string, opts ...QueryOption) (*ExtractiveAnswer, *NoAnswerResponse, error)

	// Update re-checks a document by hash. Re-ingests if changed.
	Update(ctx context.Context, path string) (bool, error)

	// UpdateAll checks all ingested documents for changes.
	UpdateAll(ctx context.Context) ([]UpdateResult, error)

	// Delete removes a document and all associated data.
	Delete(ctx context.Context, documentID int64) error

	// ListDocuments returns all ingested documents.
	ListDocuments(ctx context.Context) ([]Document, error)

	// Store returns the underlying store for diagnostic access (e.g.
	// retrieval-quality evaluation against a known-relevant-chunk set).
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer is the result of a grounded query.
type Answer struct {
	Text             string                     `json:"text"`
	Grounded         bool                       `json:"is_grounded"`
	GroundingScore   float64                    `json:"grounding_score"`
	Sources          []Source                   `json:"sources"`
	SentenceResults  []grounding.GroundingResult `json:"sentence_results,omitempty"`
	RetrievalTrace   *retrieval.SearchTrace     `json:"retrieval_trace,omitempty"`
	Warnings         []string                   `json:"warnings,omitempty"`
	ModelUsed        string                     `json:"model_used"`
	PromptTokens     int                        `json:"prompt_tokens"`
	CompletionTokens int                        `json:"completion_tokens"`
	TotalTokens      int                        `json:"total_tokens"`
}

// ExtractiveAnswer is the result of an extractive-mode query.
type ExtractiveAnswer struct {
	Text        string                      `json:"text"`
	Quotes      []grounding.ExtractiveQuote `json:"quotes"`
	AllVerified bool                        `json:"all_verified"`
	Sources     []Source                    `json:"sources"`
	ModelUsed   string                      `json:"model_used"`
}

// Source is a retrieved chunk backing an answer.
type Source struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Content    string  `json:"content"`
	Heading    string  `json:"heading"`
	PageNumber int     `json:"page_number"`
	Marker     string  `json:"marker"`
	Citation   string  `json:"citation"`
	Score      float64 `json:"score"`
}

// Document represents an ingested document.
type Document struct {
	ID               int64             `json:"id"`
	Path             string            `json:"path"`
	Filename         string            `json:"filename"`
	Format           string            `json:"format"`
	ContentHash      string            `json:"content_hash"`
	ParseMethod      string            `json:"parse_method"`
	Status           string            `json:"status"`
	Category         string            `json:"category,omitempty"`
	ReliabilityScore float64           `json:"reliability_score"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// UpdateResult reports the outcome of a document update check.
type UpdateResult struct {
	DocumentID int64  `json:"document_id"`
	Path       string `json:"path"`
	Changed    bool   `json:"changed"`
	Error      error  `json:"error,omitempty"`
}

// IngestOption configures ingestion behavior.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	forceReparse bool
	category     string
	reliability  float64
	metadata     map[string]string
}

// WithForceReparse forces re-parsing even if the content hash hasn't changed.
func WithForceReparse() IngestOption {
	return func(o *ingestOptions) { o.forceReparse = true }
}

// WithCategory tags the document with a category used by query-time filters.
func WithCategory(category string) IngestOption {
	return func(o *ingestOptions) { o.category = category }
}

// WithReliability sets the document's reliability score (multiplied into
// every chunk's retrieval score). Defaults to 1.0.
func WithReliability(score float64) IngestOption {
	return func(o *ingestOptions) { o.reliability = score }
}

// WithMetadata attaches custom metadata to the ingested document.
func WithMetadata(metadata map[string]string) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// QueryOption configures query behavior.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK             int
	documentIDs      []int64
	categories       []string
	minReliability   float64
	requireGrounding bool
}

// WithTopK overrides the number of chunks retrieved.
func WithTopK(n int) QueryOption {
	return func(o *queryOptions) { o.topK = n }
}

// WithDocumentIDs restricts retrieval to the given document ids.
func WithDocumentIDs(ids ...int64) QueryOption {
	return func(o *queryOptions) { o.documentIDs = ids }
}

// WithCategories restricts retrieval to the given document categories.
func WithCategories(categories ...string) QueryOption {
	return func(o *queryOptions) { o.categories = categories }
}

// WithMinReliability drops chunks from documents below this reliability score.
func WithMinReliability(min float64) QueryOption {
	return func(o *queryOptions) { o.minReliability = min }
}

// WithRequireGrounding controls whether an under-threshold answer is
// replaced with a NoAnswerResponse (default true: this engine's whole
// point is refusing ungrounded answers).
func WithRequireGrounding(require bool) QueryOption {
	return func(o *queryOptions) { o.requireGrounding = require }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg         Config
	store       *store.Store
	chatLLM     generator.Provider
	embedLLM    generator.Provider
	visionLLM   generator.Provider
	embedder    *embedding.Embedder
	parsers     *parser.Registry
	chunkr      *chunker.Chunker
	retriever   *retrieval.Engine
	assembler   *groundctx.Assembler
	validator   *grounding.Validator
}

// New creates a new groundrag engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 384
	}
	if err := cfg.resolveDirs(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validateWeights(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s, err := store.New(cfg.DBPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := generator.NewProvider(generator.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := generator.NewProvider(generator.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	var visionLLM generator.Provider
	if cfg.Vision.Provider != "" {
		visionLLM, err = generator.NewProvider(generator.Config{
			Provider: cfg.Vision.Provider,
			Model:    cfg.Vision.Model,
			BaseURL:  cfg.Vision.BaseURL,
			APIKey:   cfg.Vision.APIKey,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating vision provider: %w", err)
		}
	}

	embedder := embedding.New(embedLLM)

	reg := parser.NewRegistry()

	chunkr := chunker.New(chunker.Config{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})

	retriever := retrieval.New(s, embedLLM, retrieval.Config{
		WeightBM25:       cfg.WeightBM25,
		WeightDense:      cfg.WeightDense,
		WeightStructural: cfg.WeightStructural,
	})

	assembler := groundctx.New(cfg.MaxGenerationTokens * 4)
	validator := grounding.New(embedder, cfg.MinGroundingConfidence)

	return &engine{
		cfg:       cfg,
		store:     s,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		visionLLM: visionLLM,
		embedder:  embedder,
		parsers:   reg,
		chunkr:    chunkr,
		retriever: retriever,
		assembler: assembler,
		validator: validator,
	}, nil
}

// Ingest parses, chunks, and embeds a document.
func (e *engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error) {
	options := &ingestOptions{reliability: 1.0}
	for _, o := range opts {
		o(options)
	}
	if options.reliability == 0 {
		options.reliability = 1.0
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("hashing file: %w", err)
	}

	if !options.forceReparse {
		existing, err := e.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash {
			return existing.ID, nil
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	format := ext

	var metadataJSON string
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		metadataJSON = string(data)
	}

	filename := filepath.Base(absPath)
	docID, err := e.store.UpsertDocument(ctx, store.Document{
		Path:             absPath,
		Filename:         filename,
		Format:           format,
		ContentHash:      hash,
		ParseMethod:      "pending",
		Status:           "processing",
		Category:         options.category,
		ReliabilityScore: options.reliability,
		Metadata:         metadataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	slog.Info("ingest: parsing document", "file", filename, "format", format, "doc_id", docID)
	parseStart := time.Now()

	p, err := e.parsers.Get(format)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed", err.Error())
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed", err.Error())
		return 0, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	slog.Info("ingest: parsing complete",
		"file", filename, "method", parsed.Method,
		"sections", len(parsed.Sections), "elapsed", time.Since(parseStart).Round(time.Millisecond))

	e.store.UpdateDocumentParseMethod(ctx, docID, parsed.Method)

	chunkStart := time.Now()
	chunks := e.chunkr.Chunk(format, parsed.Sections)
	slog.Info("ingest: chunking complete",
		"file", filename, "chunks", len(chunks),
		"elapsed", time.Since(chunkStart).Round(time.Millisecond))

	if err := e.store.DeleteDocumentData(ctx, docID); err != nil {
		return 0, fmt.Errorf("cleaning old data: %w", err)
	}

	for i := range chunks {
		chunks[i].DocumentID = docID
	}

	chunkIDs, err := e.store.InsertChunks(ctx, chunks)
	if err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed", err.Error())
		return 0, fmt.Errorf("inserting chunks: %w", err)
	}

	slog.Info("ingest: generating embeddings", "file", filename, "chunks", len(chunks))
	embedStart := time.Now()
	if err := e.embedChunks(ctx, chunks, chunkIDs); err != nil {
		e.store.UpdateDocumentStatus(ctx, docID, "failed", err.Error())
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	slog.Info("ingest: embeddings complete",
		"file", filename, "chunks", len(chunks),
		"elapsed", time.Since(embedStart).Round(time.Millisecond))

	slog.Info("ingest: document ready", "file", filename, "doc_id", docID,
		"total_elapsed", time.Since(parseStart).Round(time.Millisecond))
	e.store.UpdateDocumentStatus(ctx, docID, "ready", "")
	return docID, nil
}

// Query runs hybrid retrieval, generation, and grounding validation.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, *NoAnswerResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil, ErrEmptyQuestion
	}

	options := &queryOptions{
		topK:             e.cfg.TopKRetrieval,
		requireGrounding: true,
	}
	for _, o := range opts {
		o(options)
	}

	results, trace, err := e.retriever.Search(ctx, question, retrieval.SearchOptions{
		TopK:           options.topK,
		DocumentIDs:    options.documentIDs,
		Categories:     options.categories,
		MinReliability: options.minReliability,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageError, err)
	}
	if len(results) == 0 {
		return nil, &NoAnswerResponse{
			Reason:         "no relevant documents found for this question",
			SourcesChecked: 0,
		}, nil
	}

	contextStr, chunks := e.assembler.Build(results)
	prompt := groundctx.BuildGroundedPrompt(contextStr, question, chunks)

	resp, err := e.chatLLM.Chat(ctx, generator.ChatRequest{
		Model:     e.cfg.Chat.Model,
		Messages:  []generator.Message{{Role: "user", Content: prompt}},
		MaxTokens: e.cfg.MaxGenerationTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}

	validation, err := e.validator.Validate(ctx, resp.Content, chunks)
	if err != nil {
		return nil, nil, fmt.Errorf("validating grounding: %w", err)
	}

	if options.requireGrounding && (!validation.Valid || len(validation.Errors) > 0) {
		partial := resp.Content
		if len(partial) > 200 {
			partial = partial[:200]
		}
		reason := "answer did not meet the grounding threshold"
		if len(validation.Errors) > 0 {
			reason = validation.Errors[0]
		}
		return nil, &NoAnswerResponse{
			Reason:         reason,
			PartialInfo:    partial,
			SourcesChecked: len(results),
		}, nil
	}

	answer := &Answer{
		Text:             resp.Content,
		Grounded:         validation.Valid,
		GroundingScore:   validation.GroundingScore,
		SentenceResults:  validation.SentenceResults,
		RetrievalTrace:   trace,
		Warnings:         validation.Warnings,
		ModelUsed:        resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	for _, c := range chunks {
		r := findResult(results, c.ChunkID)
		answer.Sources = append(answer.Sources, Source{
			ChunkID:    c.ChunkID,
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Content:    c.Content,
			Heading:    r.Heading,
			PageNumber: r.PageNumber,
			Marker:     c.Marker,
			Citation:   c.Citation,
			Score:      r.Score,
		})
	}

	e.store.LogQuery(ctx, store.QueryLog{
		Query:            question,
		Answer:           answer.Text,
		Grounded:         answer.Grounded,
		GroundingScore:   answer.GroundingScore,
		Sources:          answer.Sources,
		RetrievalMethod:  "hybrid",
		ModelUsed:        answer.ModelUsed,
		PromptTokens:     answer.PromptTokens,
		CompletionTokens: answer.CompletionTokens,
		TotalTokens:      answer.TotalTokens,
	})

	return answer, nil, nil
}

// QueryExtractive forces extractive-mode generation and verifies every
// quoted claim against its cited chunk's content.
func (e *engine) QueryExtractive(ctx context.Context, question string, opts ...QueryOption) (*ExtractiveAnswer, *NoAnswerResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, nil, ErrEmptyQuestion
	}

	options := &queryOptions{topK: e.cfg.TopKRetrieval}
	for _, o := range opts {
		o(options)
	}

	results, _, err := e.retriever.Search(ctx, question, retrieval.SearchOptions{
		TopK:           options.topK,
		DocumentIDs:    options.documentIDs,
		Categories:     options.categories,
		MinReliability: options.minReliability,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("retrieval: %w", err)
	}
	if len(results) == 0 {
		return nil, &NoAnswerResponse{Reason: "no relevant documents found for this question"}, nil
	}

	contextStr, chunks := e.assembler.Build(results)
	prompt := groundctx.BuildGroundedPrompt(contextStr, question, chunks) +
		"\n\nQuote exact phrases from the sources, each wrapped in double quotes and immediately followed by its citation marker, e.g. \"exact phrase\" [1]."

	resp, err := e.chatLLM.Chat(ctx, generator.ChatRequest{
		Model:     e.cfg.Chat.Model,
		Messages:  []generator.Message{{Role: "user", Content: prompt}},
		MaxTokens: e.cfg.MaxGenerationTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}

	extraction := grounding.ValidateExtractive(resp.Content, chunks)

	answer := &ExtractiveAnswer{
		Text:        resp.Content,
		Quotes:      extraction.Quotes,
		AllVerified: extraction.AllVerified,
		ModelUsed:   resp.Model,
	}
	for _, c := range chunks {
		r := findResult(results, c.ChunkID)
		answer.Sources = append(answer.Sources, Source{
			ChunkID: c.ChunkID, DocumentID: r.DocumentID, Filename: r.Filename,
			Content: c.Content, Heading: r.Heading, PageNumber: r.PageNumber,
			Marker: c.Marker, Citation: c.Citation, Score: r.Score,
		})
	}
	return answer, nil, nil
}

func findResult(results []store.RetrievalResult, chunkID int64) store.RetrievalResult {
	for _, r := range results {
		if r.ChunkID == chunkID {
			return r
		}
	}
	return store.RetrievalResult{}
}

// Update checks if a document has changed and re-ingests if needed.
func (e *engine) Update(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}

	doc, err := e.store.GetDocumentByPath(ctx, absPath)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrDocumentNotFound, absPath)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return false, fmt.Errorf("hashing file: %w", err)
	}
	if hash == doc.ContentHash {
		return false, nil
	}

	if _, err := e.Ingest(ctx, absPath, WithForceReparse()); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateAll checks all documents for changes.
func (e *engine) UpdateAll(ctx context.Context) ([]UpdateResult, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]UpdateResult, 0, len(docs))
	for _, doc := range docs {
		changed, err := e.Update(ctx, doc.Path)
		results = append(results, UpdateResult{
			DocumentID: doc.ID,
			Path:       doc.Path,
			Changed:    changed,
			Error:      err,
		})
	}
	return results, nil
}

// Delete removes a document and all its associated data.
func (e *engine) Delete(ctx context.Context, documentID int64) error {
	return e.store.DeleteDocument(ctx, documentID)
}

// ListDocuments returns all ingested documents.
func (e *engine) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = Document{
			ID:               d.ID,
			Path:             d.Path,
			Filename:         d.Filename,
			Format:           d.Format,
			ContentHash:      d.ContentHash,
			ParseMethod:      d.ParseMethod,
			Status:           d.Status,
			Category:         d.Category,
			ReliabilityScore: d.ReliabilityScore,
			ErrorMessage:     d.ErrorMessage,
			CreatedAt:        d.CreatedAt,
			UpdatedAt:        d.UpdatedAt,
		}
		if d.Metadata != "" {
			_ = json.Unmarshal([]byte(d.Metadata), &result[i].Metadata)
		}
	}
	return result, nil
}

// Store returns the underlying store for diagnostic access.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}

// embedChunks generates and stores embeddings for chunks via the
// batching/truncation embedder, heading-prefixed so short chunks still
// carry their section context into the vector.
func (e *engine) embedChunks(ctx context.Context, chunks []store.Chunk, chunkIDs []int64) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		prefix := ""
		if c.Heading != "" {
			prefix = c.Heading + ": "
		}
		texts[i] = prefix + c.Content
	}

	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	var failed int
	for i, v := range vecs {
		if len(v) == 0 {
			failed++
			continue
		}
		if err := e.store.InsertEmbedding(ctx, chunkIDs[i], v); err != nil {
			slog.Warn("storing embedding failed", "chunk_id", chunkIDs[i], "error", err)
			failed++
		}
	}

	if failed == len(chunks) {
		return fmt.Errorf("all %d chunks failed embedding", len(chunks))
	}
	if failed > 0 {
		slog.Warn("some embeddings failed", "failed", failed, "total", len(chunks))
	}
	return nil
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
