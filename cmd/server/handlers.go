package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/groundrag/groundrag"
)

type handler struct {
	engine groundrag.Engine
}

func newHandler(e groundrag.Engine) *handler {
	return &handler{engine: e}
}

// POST /ingest
// Accepts multipart file upload or JSON with a file path.
func (h *handler) handleIngest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Minute)
	defer cancel()

	if file, header, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()

		safeName := filepath.Base(header.Filename)
		tmpPath := filepath.Join(os.TempDir(), safeName)
		dst, err := os.Create(tmpPath)
		if err != nil {
			slog.Error("creating temp file", "error", err)
			writeError(c, http.StatusInternalServerError, "failed to process file")
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			slog.Error("saving uploaded file", "error", err)
			writeError(c, http.StatusInternalServerError, "failed to save file")
			return
		}
		dst.Close()
		defer os.Remove(tmpPath)

		docID, err := h.engine.Ingest(ctx, tmpPath, ingestOptionsFromForm(c)...)
		if err != nil {
			slog.Error("ingest error", "error", err)
			writeError(c, http.StatusInternalServerError, "ingestion failed")
			return
		}

		c.JSON(http.StatusOK, gin.H{"document_id": docID, "filename": safeName})
		return
	}

	var req struct {
		Path     string `json:"path"`
		Category string `json:"category,omitempty"`
		Force    bool   `json:"force,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(c, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(c, http.StatusBadRequest, "path must be an existing file")
		return
	}

	var opts []groundrag.IngestOption
	if req.Category != "" {
		opts = append(opts, groundrag.WithCategory(req.Category))
	}
	if req.Force {
		opts = append(opts, groundrag.WithForceReparse())
	}

	docID, err := h.engine.Ingest(ctx, absPath, opts...)
	if err != nil {
		slog.Error("ingest error", "path", absPath, "error", err)
		writeError(c, http.StatusInternalServerError, "ingestion failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"document_id": docID, "path": absPath})
}

func ingestOptionsFromForm(c *gin.Context) []groundrag.IngestOption {
	var opts []groundrag.IngestOption
	if category := c.Request.FormValue("category"); category != "" {
		opts = append(opts, groundrag.WithCategory(category))
	}
	if c.Request.FormValue("force") != "" {
		opts = append(opts, groundrag.WithForceReparse())
	}
	return opts
}

type queryRequest struct {
	Question       string   `json:"question"`
	MaxResults      int      `json:"max_results,omitempty"`
	DocumentIDs     []int64  `json:"document_ids,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	MinReliability  float64  `json:"min_reliability,omitempty"`
	AllowUngrounded bool     `json:"allow_ungrounded,omitempty"`
}

func queryOptionsFromRequest(req queryRequest) []groundrag.QueryOption {
	var opts []groundrag.QueryOption
	if req.MaxResults > 0 && req.MaxResults <= 100 {
		opts = append(opts, groundrag.WithTopK(req.MaxResults))
	}
	if len(req.DocumentIDs) > 0 {
		opts = append(opts, groundrag.WithDocumentIDs(req.DocumentIDs...))
	}
	if len(req.Categories) > 0 {
		opts = append(opts, groundrag.WithCategories(req.Categories...))
	}
	if req.MinReliability > 0 {
		opts = append(opts, groundrag.WithMinReliability(req.MinReliability))
	}
	if req.AllowUngrounded {
		opts = append(opts, groundrag.WithRequireGrounding(false))
	}
	return opts
}

// POST /query
func (h *handler) handleQuery(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(c, http.StatusBadRequest, "question is required")
		return
	}

	answer, noAnswer, err := h.engine.Query(ctx, req.Question, queryOptionsFromRequest(req)...)
	if err != nil {
		slog.Error("query error", "question", req.Question, "error", err)
		writeError(c, http.StatusInternalServerError, "query failed")
		return
	}
	if noAnswer != nil {
		c.JSON(http.StatusOK, gin.H{"no_answer": noAnswer})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// POST /query/extractive
func (h *handler) handleQueryExtractive(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(c, http.StatusBadRequest, "question is required")
		return
	}

	answer, noAnswer, err := h.engine.QueryExtractive(ctx, req.Question, queryOptionsFromRequest(req)...)
	if err != nil {
		slog.Error("extractive query error", "question", req.Question, "error", err)
		writeError(c, http.StatusInternalServerError, "query failed")
		return
	}
	if noAnswer != nil {
		c.JSON(http.StatusOK, gin.H{"no_answer": noAnswer})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// POST /update
func (h *handler) handleUpdate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Path == "" {
		writeError(c, http.StatusBadRequest, "path is required")
		return
	}

	changed, err := h.engine.Update(ctx, req.Path)
	if err != nil {
		slog.Error("update error", "path", req.Path, "error", err)
		writeError(c, http.StatusInternalServerError, "update failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"path": req.Path, "changed": changed})
}

// POST /update-all
func (h *handler) handleUpdateAll(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Minute)
	defer cancel()

	results, err := h.engine.UpdateAll(ctx)
	if err != nil {
		slog.Error("update-all error", "error", err)
		writeError(c, http.StatusInternalServerError, "update-all failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// DELETE /documents/:id
func (h *handler) handleDeleteDocument(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.engine.Delete(c.Request.Context(), id); err != nil {
		slog.Error("delete error", "document_id", id, "error", err)
		writeError(c, http.StatusInternalServerError, "delete failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GET /documents
func (h *handler) handleListDocuments(c *gin.Context) {
	docs, err := h.engine.ListDocuments(c.Request.Context())
	if err != nil {
		slog.Error("list documents error", "error", err)
		writeError(c, http.StatusInternalServerError, "failed to list documents")
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// GET /health
func (h *handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
