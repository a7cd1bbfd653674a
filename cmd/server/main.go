package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/groundrag/groundrag"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml/json/toml)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	engine, err := groundrag.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	apiKey := viper.GetString("api_key")
	corsOrigins := viper.GetString("cors_origins")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(corsMiddleware(corsOrigins))
	router.Use(authMiddleware(apiKey))

	h := newHandler(engine)
	router.POST("/ingest", h.handleIngest)
	router.POST("/query", h.handleQuery)
	router.POST("/query/extractive", h.handleQueryExtractive)
	router.POST("/update", h.handleUpdate)
	router.POST("/update-all", h.handleUpdateAll)
	router.DELETE("/documents/:id", h.handleDeleteDocument)
	router.GET("/documents", h.handleListDocuments)
	router.GET("/health", h.handleHealth)

	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses (ingest can be long)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

// loadConfig resolves groundrag.Config with precedence file < environment,
// reading every environment key groundrag.Config documents.
func loadConfig(configPath string) (groundrag.Config, error) {
	cfg := groundrag.DefaultConfig()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if s := v.GetString("APP_NAME"); s != "" {
		cfg.AppName = s
	}
	if v.IsSet("DEBUG") {
		cfg.Debug = v.GetBool("DEBUG")
	}
	if s := v.GetString("DATA_DIR"); s != "" {
		cfg.DataDir = s
	}
	if s := v.GetString("UPLOAD_DIR"); s != "" {
		cfg.UploadDir = s
	}
	if s := v.GetString("INDEX_DIR"); s != "" {
		cfg.IndexDir = s
	}
	if s := v.GetString("CACHE_DIR"); s != "" {
		cfg.CacheDir = s
	}
	if s := v.GetString("DATABASE_URL"); s != "" {
		cfg.DBPath = s
	}
	if s := v.GetString("EMBEDDING_MODEL"); s != "" {
		cfg.Embedding.Model = s
	}
	if v.IsSet("EMBEDDING_DIMENSION") {
		cfg.EmbeddingDim = v.GetInt("EMBEDDING_DIMENSION")
	}
	if v.IsSet("EMBEDDING_BATCH_SIZE") {
		cfg.EmbeddingBatchSize = v.GetInt("EMBEDDING_BATCH_SIZE")
	}
	if s := v.GetString("OLLAMA_HOST"); s != "" {
		cfg.OllamaHost = s
		cfg.Chat.BaseURL = s
		cfg.Embedding.BaseURL = s
	}
	if s := v.GetString("OLLAMA_MODEL"); s != "" {
		cfg.OllamaModel = s
		cfg.Chat.Model = s
	}
	if v.IsSet("OLLAMA_TIMEOUT") {
		cfg.OllamaTimeout = v.GetInt("OLLAMA_TIMEOUT")
	}
	if v.IsSet("BM25_WEIGHT") {
		cfg.WeightBM25 = v.GetFloat64("BM25_WEIGHT")
	}
	if v.IsSet("DENSE_WEIGHT") {
		cfg.WeightDense = v.GetFloat64("DENSE_WEIGHT")
	}
	if v.IsSet("STRUCTURAL_WEIGHT") {
		cfg.WeightStructural = v.GetFloat64("STRUCTURAL_WEIGHT")
	}
	if v.IsSet("TOP_K_RETRIEVAL") {
		cfg.TopKRetrieval = v.GetInt("TOP_K_RETRIEVAL")
	}
	if v.IsSet("TOP_K_RERANK") {
		cfg.TopKRerank = v.GetInt("TOP_K_RERANK")
	}
	if v.IsSet("CHUNK_SIZE") {
		cfg.ChunkSize = v.GetInt("CHUNK_SIZE")
	}
	if v.IsSet("CHUNK_OVERLAP") {
		cfg.ChunkOverlap = v.GetInt("CHUNK_OVERLAP")
	}
	if v.IsSet("MIN_GROUNDING_CONFIDENCE") {
		cfg.MinGroundingConfidence = v.GetFloat64("MIN_GROUNDING_CONFIDENCE")
	}
	if v.IsSet("REQUIRE_EXACT_CITATION") {
		cfg.RequireExactCitation = v.GetBool("REQUIRE_EXACT_CITATION")
	}
	if v.IsSet("MAX_GENERATION_TOKENS") {
		cfg.MaxGenerationTokens = v.GetInt("MAX_GENERATION_TOKENS")
	}
	if s := v.GetString("OCR_LANGUAGE"); s != "" {
		cfg.OCRLanguage = s
	}

	if s := v.GetString("CHAT_PROVIDER"); s != "" {
		cfg.Chat.Provider = s
	}
	if s := v.GetString("CHAT_API_KEY"); s != "" {
		cfg.Chat.APIKey = s
	}
	if s := v.GetString("EMBED_PROVIDER"); s != "" {
		cfg.Embedding.Provider = s
	}
	if s := v.GetString("EMBED_API_KEY"); s != "" {
		cfg.Embedding.APIKey = s
	}

	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.Embedding.APIKey = os.Getenv("GROQ_API_KEY")
		}
	}

	v.SetDefault("api_key", os.Getenv("GROUNDRAG_API_KEY"))
	v.SetDefault("cors_origins", os.Getenv("GROUNDRAG_CORS_ORIGINS"))
	viper.Set("api_key", v.GetString("api_key"))
	viper.Set("cors_origins", v.GetString("cors_origins"))

	return cfg, nil
}
