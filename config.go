package groundrag

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all configuration for the groundrag engine. Most fields
// map to one of the enumerated environment keys the CLI entry points
// read at startup (the LLM provider blocks Chat, Embedding and Vision,
// and DBPath, do not): APP_NAME, DEBUG, DATA_DIR, UPLOAD_DIR, INDEX_DIR,
// CACHE_DIR, DATABASE_URL, EMBEDDING_MODEL, EMBEDDING_DIMENSION,
// EMBEDDING_BATCH_SIZE, OLLAMA_HOST, OLLAMA_MODEL, OLLAMA_TIMEOUT,
// BM25_WEIGHT, DENSE_WEIGHT, STRUCTURAL_WEIGHT, TOP_K_RETRIEVAL,
// TOP_K_RERANK, CHUNK_SIZE, CHUNK_OVERLAP, MIN_GROUNDING_CONFIDENCE,
// REQUIRE_EXACT_CITATION, MAX_GENERATION_TOKENS, OCR_LANGUAGE.
type Config struct {
	AppName string `json:"app_name" yaml:"app_name"`
	Debug   bool   `json:"debug" yaml:"debug"`

	// DataDir is the root all other paths default under; missing
	// directories are created at startup.
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	UploadDir string `json:"upload_dir" yaml:"upload_dir"`
	IndexDir  string `json:"index_dir" yaml:"index_dir"`
	CacheDir  string `json:"cache_dir" yaml:"cache_dir"`

	// DBPath is the full path to the SQLite database file. If empty,
	// it is derived from DataDir.
	DBPath string `json:"db_path" yaml:"db_path"`

	// LLM providers.
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Vision    LLMConfig `json:"vision" yaml:"vision"`

	EmbeddingDim       int `json:"embedding_dimension" yaml:"embedding_dimension"`
	EmbeddingBatchSize int `json:"embedding_batch_size" yaml:"embedding_batch_size"`

	OllamaHost    string `json:"ollama_host" yaml:"ollama_host"`
	OllamaModel   string `json:"ollama_model" yaml:"ollama_model"`
	OllamaTimeout int    `json:"ollama_timeout" yaml:"ollama_timeout"` // seconds

	// Retrieval fusion weights; must sum to 1.0 (validated at startup).
	WeightBM25       float64 `json:"bm25_weight" yaml:"bm25_weight"`
	WeightDense      float64 `json:"dense_weight" yaml:"dense_weight"`
	WeightStructural float64 `json:"structural_weight" yaml:"structural_weight"`

	TopKRetrieval int `json:"top_k_retrieval" yaml:"top_k_retrieval"`
	TopKRerank    int `json:"top_k_rerank" yaml:"top_k_rerank"`

	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	MinGroundingConfidence float64 `json:"min_grounding_confidence" yaml:"min_grounding_confidence"`
	RequireExactCitation   bool    `json:"require_exact_citation" yaml:"require_exact_citation"`
	MaxGenerationTokens    int     `json:"max_generation_tokens" yaml:"max_generation_tokens"`

	OCRLanguage string `json:"ocr_language" yaml:"ocr_language"`

	// CaptionImages is opt-in: caption extracted images via the vision
	// provider during ingestion.
	CaptionImages bool `json:"caption_images" yaml:"caption_images"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, xai, gemini, groq, openai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the same defaults as the offline
// reference engine this was ported from (local Ollama inference,
// ./data as the storage root, spec-pinned fusion weights and
// thresholds).
func DefaultConfig() Config {
	return Config{
		AppName: "groundrag",
		DataDir: "./data",

		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "mistral",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},

		EmbeddingDim:       384,
		EmbeddingBatchSize: 32,

		OllamaHost:    "http://localhost:11434",
		OllamaModel:   "mistral",
		OllamaTimeout: 120,

		WeightBM25:       0.3,
		WeightDense:      0.5,
		WeightStructural: 0.2,

		TopKRetrieval: 20,
		TopKRerank:    5,

		ChunkSize:    512,
		ChunkOverlap: 0,

		MinGroundingConfidence: 0.7,
		RequireExactCitation:   true,
		MaxGenerationTokens:    1024,

		OCRLanguage: "eng",
	}
}

// resolveDirs fills in Upload/Index/Cache/DB paths relative to DataDir
// wherever they were left unset, and creates every directory on disk.
func (c *Config) resolveDirs() error {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.IndexDir == "" {
		c.IndexDir = filepath.Join(c.DataDir, "indices")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "groundrag.db")
	}

	for _, dir := range []string{c.DataDir, c.UploadDir, c.IndexDir, c.CacheDir, filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// validateWeights enforces that the fusion weights sum to 1.0 within a
// small floating-point tolerance, per the startup-validated-sum design
// note.
func (c *Config) validateWeights() error {
	sum := c.WeightBM25 + c.WeightDense + c.WeightStructural
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.4f (bm25=%.2f dense=%.2f structural=%.2f)",
			sum, c.WeightBM25, c.WeightDense, c.WeightStructural)
	}
	return nil
}
