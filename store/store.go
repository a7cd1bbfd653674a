package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document represents a row in the documents table.
type Document struct {
	ID                int64   `json:"id"`
	Path              string  `json:"path"`
	Filename          string  `json:"filename"`
	Format            string  `json:"format"`
	ContentHash       string  `json:"content_hash"`
	ParseMethod       string  `json:"parse_method"`
	Status            string  `json:"status"`
	Category          string  `json:"category,omitempty"`
	Tags              string  `json:"tags,omitempty"` // JSON array
	ReliabilityScore  float64 `json:"reliability_score"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	Metadata          string  `json:"metadata,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// Chunk represents a row in the chunks table.
type Chunk struct {
	ID                int64  `json:"id"`
	DocumentID        int64  `json:"document_id"`
	ParentChunkID     *int64 `json:"parent_chunk_id,omitempty"`
	Content           string `json:"content"`
	StructuralRole    string `json:"structural_role"`
	ChunkType         string `json:"chunk_type"`
	Heading           string `json:"heading"`
	HeadingLevel      int    `json:"heading_level"`
	PageNumber        int    `json:"page_number"`
	SequenceIndex     int    `json:"sequence_index"`
	PositionInDoc     int    `json:"position_in_doc"`
	CharStart         *int   `json:"char_start,omitempty"`
	CharEnd           *int   `json:"char_end,omitempty"`
	TokenCount        int    `json:"token_count"`
	ConfidenceWeight  float64 `json:"confidence_weight"`
	Metadata          string `json:"metadata,omitempty"`
	ContentHash       string `json:"content_hash"`
}

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	Query            string      `json:"query"`
	Answer           string      `json:"answer"`
	Grounded         bool        `json:"grounded"`
	GroundingScore   float64     `json:"grounding_score"`
	Sources          interface{} `json:"sources"`
	RetrievalMethod  string      `json:"retrieval_method"`
	ModelUsed        string      `json:"model_used"`
	PromptTokens     int         `json:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens"`
	TotalTokens      int         `json:"total_tokens"`
}

// RetrievalResult holds a chunk with its retrieval score and document info.
// This is the concrete shape of a "Retrieved-chunk record": it carries both
// the raw per-method scores (filled in by VectorSearch/FTSSearch) and the
// document-level fields the structural reranker and context assembler need.
type RetrievalResult struct {
	ChunkID          int64   `json:"chunk_id"`
	DocumentID       int64   `json:"document_id"`
	Content          string  `json:"content"`
	Heading          string  `json:"heading"`
	ChunkType        string  `json:"chunk_type"`
	StructuralRole   string  `json:"structural_role"`
	PageNumber       int     `json:"page_number"`
	SequenceIndex    int     `json:"sequence_index"`
	ConfidenceWeight float64 `json:"confidence_weight"`
	Filename         string  `json:"filename"`
	Path             string  `json:"path"`
	Category         string  `json:"category,omitempty"`
	ReliabilityScore float64 `json:"reliability_score"`
	Score            float64 `json:"score"`
}

// Store wraps the SQLite database for all groundrag persistence: the
// document/chunk store, the lexical index (FTS5) and the vector index
// (sqlite-vec), all reachable through one *sql.DB handle.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite. WAL mode lets readers see a
	// consistent snapshot while a writer holds the single write lock, which
	// is how this store satisfies the single-writer/many-reader discipline
	// without a hand-rolled pointer-swap structure.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	if doc.ReliabilityScore == 0 {
		doc.ReliabilityScore = 1.0
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, parse_method, status,
			category, tags, reliability_score, error_message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			parse_method = excluded.parse_method,
			status = excluded.status,
			category = excluded.category,
			tags = excluded.tags,
			reliability_score = excluded.reliability_score,
			error_message = excluded.error_message,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.ParseMethod, doc.Status,
		doc.Category, doc.Tags, doc.ReliabilityScore, doc.ErrorMessage, doc.Metadata)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	// If UPSERT did an UPDATE, LastInsertId may not reflect the existing row.
	if id == 0 {
		row := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", doc.Path)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

const documentColumns = `id, path, filename, format, content_hash, parse_method, status,
	COALESCE(category, ''), COALESCE(tags, ''), reliability_score, COALESCE(error_message, ''),
	metadata, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	doc := &Document{}
	var metadata sql.NullString
	err := row.Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Format,
		&doc.ContentHash, &doc.ParseMethod, &doc.Status,
		&doc.Category, &doc.Tags, &doc.ReliabilityScore, &doc.ErrorMessage,
		&metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Metadata = metadata.String
	return doc, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE path = ?", path)
	return scanDocument(row)
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// ListDocuments returns all documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates the status field and sets error_message to
// errMsg; an empty errMsg clears it.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, errMsg, id)
	return err
}

// UpdateDocumentParseMethod updates just the parse_method field.
func (s *Store) UpdateDocumentParseMethod(ctx context.Context, id int64, method string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET parse_method = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		method, id)
	return err
}

// DeleteDocument removes a document and cascades to all related data
// (embeddings, chunks, and — via the chunks_a[iud] FTS triggers — the
// lexical index entries).
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (
				SELECT id FROM chunks WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

// DeleteDocumentData removes all chunks and embeddings for a document but
// keeps the document record itself, for idempotent re-ingestion.
func (s *Store) DeleteDocumentData(ctx context.Context, docID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_chunks WHERE chunk_id IN (
				SELECT id FROM chunks WHERE document_id = ?
			)`, docID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chunks WHERE document_id = ?", docID); err != nil {
			return err
		}
		return nil
	})
}

// --- Chunk operations ---

const chunkColumns = `id, document_id, parent_chunk_id, content, structural_role, chunk_type, heading,
	heading_level, page_number, sequence_index, position_in_doc, char_start, char_end,
	token_count, confidence_weight, metadata, content_hash`

func scanChunk(row interface{ Scan(...interface{}) error }) (*Chunk, error) {
	var c Chunk
	var metadata sql.NullString
	if err := row.Scan(&c.ID, &c.DocumentID, &c.ParentChunkID, &c.Content, &c.StructuralRole,
		&c.ChunkType, &c.Heading, &c.HeadingLevel, &c.PageNumber, &c.SequenceIndex,
		&c.PositionInDoc, &c.CharStart, &c.CharEnd, &c.TokenCount, &c.ConfidenceWeight,
		&metadata, &c.ContentHash); err != nil {
		return nil, err
	}
	c.Metadata = metadata.String
	return &c, nil
}

// InsertChunks inserts a batch of chunks and returns their IDs.
// The chunker assigns temporary position-based IDs; this method remaps
// ParentChunkID values to the real database IDs as chunks are inserted.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) ([]int64, error) {
	ids := make([]int64, len(chunks))

	// Map from temporary position-based ID to real DB ID.
	idMap := make(map[int64]int64, len(chunks))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (document_id, parent_chunk_id, content, structural_role, chunk_type,
				heading, heading_level, page_number, sequence_index, position_in_doc,
				char_start, char_end, token_count, confidence_weight, metadata, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, c := range chunks {
			hash := sha256.Sum256([]byte(c.Content))
			contentHash := hex.EncodeToString(hash[:])

			// Remap parent_chunk_id from temporary to real DB ID.
			var parentID *int64
			if c.ParentChunkID != nil {
				if realID, ok := idMap[*c.ParentChunkID]; ok {
					parentID = &realID
				}
			}

			weight := c.ConfidenceWeight
			if weight == 0 {
				weight = 1.0
			}

			res, err := stmt.ExecContext(ctx,
				c.DocumentID, parentID, c.Content, c.StructuralRole, c.ChunkType,
				c.Heading, c.HeadingLevel, c.PageNumber, c.SequenceIndex, c.PositionInDoc,
				c.CharStart, c.CharEnd, c.TokenCount, weight, c.Metadata, contentHash)
			if err != nil {
				return err
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
			idMap[c.ID] = ids[i]
		}
		return nil
	})

	return ids, err
}

// GetChunksByDocument returns all chunks for a given document ordered by
// their sequence index (dense, monotonic per document).
func (s *Store) GetChunksByDocument(ctx context.Context, docID int64) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? ORDER BY sequence_index", docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// GetChunkByID retrieves a single chunk by its primary key.
func (s *Store) GetChunkByID(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	return scanChunk(row)
}

// GetContextWindow returns chunks of a document whose sequence_index falls
// within [center-window, center+window], inclusive, for expanding a single
// retrieved chunk into its surrounding context.
func (s *Store) GetContextWindow(ctx context.Context, docID int64, center, window int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ? AND sequence_index BETWEEN ? AND ?
		ORDER BY sequence_index
	`, docID, center-window, center+window)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// --- Embedding (vector index) operations ---

// InsertEmbedding stores (adds) a vector embedding for a chunk.
func (s *Store) InsertEmbedding(ctx context.Context, chunkID int64, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)",
		chunkID, serializeFloat32(embedding))
	return err
}

// RemoveEmbedding removes a chunk's vector from the index. sqlite-vec's vec0
// table supports direct row deletion, which satisfies the vector index
// contract's "remove" operation without a separate rebuild step.
func (s *Store) RemoveEmbedding(ctx context.Context, chunkID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM vec_chunks WHERE chunk_id = ?", chunkID)
	return err
}

// VectorSearch performs a KNN search returning the top-k nearest chunks.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]RetrievalResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.chunk_id, v.distance,
			c.content, c.heading, c.chunk_type, c.structural_role, c.page_number, c.sequence_index,
			c.confidence_weight, c.document_id, d.filename, d.path, COALESCE(d.category, ''), d.reliability_score
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var distance float64
		if err := rows.Scan(&r.ChunkID, &distance,
			&r.Content, &r.Heading, &r.ChunkType, &r.StructuralRole, &r.PageNumber, &r.SequenceIndex,
			&r.ConfidenceWeight, &r.DocumentID, &r.Filename, &r.Path, &r.Category, &r.ReliabilityScore); err != nil {
			return nil, err
		}
		// sqlite-vec's cosine distance is 1 - cosine_similarity for unit-norm
		// vectors, so similarity = 1 - distance.
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// VectorIndexStats reports the current size of the vector index.
type VectorIndexStats struct {
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

// VectorStats returns add/remove/search contract diagnostics for the vector index.
func (s *Store) VectorStats(ctx context.Context) (*VectorIndexStats, error) {
	stats := &VectorIndexStats{Dimension: s.embeddingDim}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_chunks").Scan(&stats.Count); err != nil {
		return nil, err
	}
	return stats, nil
}

// --- Lexical index operations ---

// FTSSearch performs a full-text search using FTS5 BM25 ranking.
func (s *Store) FTSSearch(ctx context.Context, query string, limit int) ([]RetrievalResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rowid, f.rank,
			c.content, c.heading, c.chunk_type, c.structural_role, c.page_number, c.sequence_index,
			c.confidence_weight, c.document_id, d.filename, d.path, COALESCE(d.category, ''), d.reliability_score
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		var rank float64
		if err := rows.Scan(&r.ChunkID, &rank,
			&r.Content, &r.Heading, &r.ChunkType, &r.StructuralRole, &r.PageNumber, &r.SequenceIndex,
			&r.ConfidenceWeight, &r.DocumentID, &r.Filename, &r.Path, &r.Category, &r.ReliabilityScore); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better); flip sign so higher = better.
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Query log ---

// LogQuery writes an entry to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	sourcesJSON, _ := json.Marshal(q.Sources)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, answer, grounded, grounding_score, sources, retrieval_method,
			model_used, prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Query, q.Answer, q.Grounded, q.GroundingScore, string(sourcesJSON), q.RetrievalMethod,
		q.ModelUsed, q.PromptTokens, q.CompletionTokens, q.TotalTokens)
	return err
}

// --- Diagnostic helpers ---

// ChunkMatch holds the result of a content substring search.
type ChunkMatch struct {
	ChunkID    int64  `json:"chunk_id"`
	Heading    string `json:"heading"`
	PageNumber int    `json:"page_number"`
}

// SearchChunksByContent searches all chunks for a case-insensitive substring match.
func (s *Store) SearchChunksByContent(ctx context.Context, substring string) ([]ChunkMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, heading, page_number FROM chunks
		WHERE LOWER(content) LIKE '%' || LOWER(?) || '%'
	`, substring)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.Heading, &m.PageNumber); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ChunkHasEmbedding checks if a specific chunk has a vector embedding.
func (s *Store) ChunkHasEmbedding(ctx context.Context, chunkID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vec_chunks WHERE chunk_id = ?", chunkID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
	Documents  int `json:"documents"`
}

// Stats returns counts of chunks, embeddings, and documents.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM chunks", &stats.Chunks},
		{"SELECT COUNT(*) FROM vec_chunks", &stats.Embeddings},
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// SampleChunks returns up to n chunks sampled from the database.
func (s *Store) SampleChunks(ctx context.Context, n int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks ORDER BY RANDOM() LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
