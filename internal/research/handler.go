package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/researchdesk/backend/internal/models"
	"github.com/researchdesk/backend/internal/pipeline"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ReportStore defines the interface for report persistence.
type ReportStore interface {
	Insert(ctx context.Context, doc *models.Document) (string, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	GetByID(ctx context.Context, id string) (*models.Document, error)
	AppendRevision(ctx context.Context, id string, rev models.Revision) error
	Delete(ctx context.Context, id string) error
}

// FileStore defines the interface for artifact storage.
type FileStore interface {
	UploadHTML(ctx context.Context, key string, html []byte) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// Pipeline defines the research orchestration consumed by the handlers.
type Pipeline interface {
	Run(ctx context.Context, query string, depth models.Depth) (*models.ResearchResult, error)
	Revise(ctx context.Context, current, instruction string, sources []models.Source, depth models.Depth) (*models.ResearchResult, error)
}

// Handler holds research HTTP handlers.
type Handler struct {
	reports  ReportStore
	files    FileStore
	pipeline Pipeline
	logger   *zap.Logger
}

func NewHandler(reports ReportStore, files FileStore, pipe Pipeline, logger *zap.Logger) *Handler {
	return &Handler{reports: reports, files: files, pipeline: pipe, logger: logger.Named("research")}
}

// Create runs the full research pipeline and stores the result.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)

	var req models.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return
	}
	if req.Depth == "" {
		req.Depth = models.DepthQuick
	}
	if !req.Depth.Valid() {
		http.Error(w, `{"error":"depth must be quick or deep"}`, http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Run(r.Context(), req.Query, req.Depth)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	doc := &models.Document{
		UserID:   userID,
		Query:    req.Query,
		Content:  result.Content,
		Markdown: result.Markdown,
		Sources:  result.Sources,
		Metadata: result.Metadata,
	}
	docID, err := h.reports.Insert(r.Context(), doc)
	if err != nil {
		h.logger.Error("report insert failed", zap.Error(err))
		http.Error(w, `{"error":"failed to save report"}`, http.StatusInternalServerError)
		return
	}

	// Artifact upload is best-effort; the report itself is already saved.
	htmlKey := fmt.Sprintf("%s/%s.html", userID, docID)
	if err := h.files.UploadHTML(r.Context(), htmlKey, []byte(result.Content)); err != nil {
		h.logger.Warn("artifact upload failed", zap.String("key", htmlKey), zap.Error(err))
	} else {
		doc.HTMLObjectKey = htmlKey
	}

	saved, err := h.reports.GetByID(r.Context(), docID)
	if err != nil {
		saved = doc
	}
	writeJSON(w, http.StatusCreated, saved)
}

// Revise applies a natural-language edit to a stored report. Citation
// validation is strict here: the model may not introduce source ids that
// were not part of the original research run.
func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	id := chi.URLParam(r, "id")

	doc, err := h.reports.GetByID(r.Context(), id)
	if err != nil || doc.UserID != userID {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	var req models.ReviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Instruction == "" {
		http.Error(w, `{"error":"instruction is required"}`, http.StatusBadRequest)
		return
	}

	result, err := h.pipeline.Revise(r.Context(), doc.Markdown, req.Instruction, doc.Sources, doc.Metadata.Depth)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	rev := models.Revision{
		Instruction: req.Instruction,
		Content:     result.Content,
		Markdown:    result.Markdown,
		Metadata:    result.Metadata,
	}
	if err := h.reports.AppendRevision(r.Context(), id, rev); err != nil {
		h.logger.Error("revision save failed", zap.Error(err))
		http.Error(w, `{"error":"failed to save revision"}`, http.StatusInternalServerError)
		return
	}

	if doc.HTMLObjectKey != "" {
		if err := h.files.UploadHTML(r.Context(), doc.HTMLObjectKey, []byte(result.Content)); err != nil {
			h.logger.Warn("artifact update failed", zap.String("key", doc.HTMLObjectKey), zap.Error(err))
		}
	}

	saved, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"failed to load report"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// List returns all reports for the current user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	docs, err := h.reports.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"database error"}`, http.StatusInternalServerError)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get returns a single report.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	id := chi.URLParam(r, "id")
	doc, err := h.reports.GetByID(r.Context(), id)
	if err != nil || doc.UserID != userID {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete removes a report and its stored artifact.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	id := chi.URLParam(r, "id")
	doc, err := h.reports.GetByID(r.Context(), id)
	if err != nil || doc.UserID != userID {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	if doc.HTMLObjectKey != "" {
		h.files.Remove(r.Context(), doc.HTMLObjectKey)
	}

	if err := h.reports.Delete(r.Context(), id); err != nil {
		http.Error(w, `{"error":"delete failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// DownloadHTML streams the rendered report artifact.
func (h *Handler) DownloadHTML(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("user_id").(string)
	id := chi.URLParam(r, "id")
	doc, err := h.reports.GetByID(r.Context(), id)
	if err != nil || doc.UserID != userID || doc.HTMLObjectKey == "" {
		http.Error(w, `{"error":"report not available"}`, http.StatusNotFound)
		return
	}

	data, ct, err := h.files.Download(r.Context(), doc.HTMLObjectKey)
	if err != nil {
		http.Error(w, `{"error":"download failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename=report.html")
	w.Write(data)
}

// writePipelineError maps pipeline failures to HTTP responses. Internal
// causes go to the log; users get one stable message per failure kind.
func (h *Handler) writePipelineError(w http.ResponseWriter, err error) {
	var (
		rateErr  *pipeline.RateLimitError
		citeErr  *pipeline.InvalidCitationError
		shortErr *pipeline.ContentTooShortError
		genErr   *pipeline.GenerationError
	)

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter/time.Second)+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "Search rate limit reached. Please wait a moment and try again.",
		})
	case errors.Is(err, pipeline.ErrSearchUnavailable):
		h.logger.Error("search unavailable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "We couldn't gather sources for that query. Try rephrasing it.",
		})
	case errors.As(err, &citeErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":       "The revision referenced sources that don't exist.",
			"invalid_ids": citeErr.IDs,
		})
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("pipeline timeout", zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error": "The request took too long. Please try again.",
		})
	case errors.As(err, &shortErr), errors.As(err, &genErr), errors.Is(err, pipeline.ErrRenderingFailed):
		h.logger.Error("generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Report generation failed. Please try again.",
		})
	default:
		h.logger.Error("pipeline error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Something went wrong. Please try again.",
		})
	}
}
