package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/service"
	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/garyjia/expense-validator/internal/infrastructure/metrics"
	"github.com/garyjia/expense-validator/pkg/utils"
)

// multipartOverhead covers boundaries and part headers around the file
const multipartOverhead = 1 << 20

// Handlers contains all HTTP request handlers
type Handlers struct {
	uploads        service.UploadService
	pipeline       service.ValidationPipeline
	renderer       port.ReportRenderer
	maxUploadBytes int64
	logger         Logger
	now            func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	uploads service.UploadService,
	pipeline service.ValidationPipeline,
	renderer port.ReportRenderer,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &Handlers{
		uploads:        uploads,
		pipeline:       pipeline,
		renderer:       renderer,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		now:            time.Now,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// UploadFile handles POST /api/upload/:category
func (h *Handlers) UploadFile(c *gin.Context) {
	category, err := entity.ParseFileCategory(c.Param("category"))
	if err != nil {
		h.respondError(c, http.StatusNotFound, err.Error())
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, http.StatusBadRequest,
				fmt.Sprintf("File too large. Maximum size is %dMB", h.maxUploadBytes/(1024*1024)))
			return
		}
		h.respondError(c, http.StatusBadRequest, "No file uploaded")
		return
	}

	f, err := header.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", "category", category, "error", err)
		h.respondError(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded file", "category", category, "error", err)
		h.respondError(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	stored, err := h.uploads.Save(c.Request.Context(), category, utils.SanitizeFilename(header.Filename), content)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues(string(category)).Inc()
	c.JSON(http.StatusCreated, stored)
}

// ListUploads handles GET /api/upload/:category
func (h *Handlers) ListUploads(c *gin.Context) {
	category, err := entity.ParseFileCategory(c.Param("category"))
	if err != nil {
		h.respondError(c, http.StatusNotFound, err.Error())
		return
	}

	files, err := h.uploads.List(c.Request.Context(), category)
	if err != nil {
		h.logger.Error("Failed to list uploads", "category", category, "error", err)
		h.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []*entity.StoredFile{}
	}

	c.JSON(http.StatusOK, files)
}

// ClearUploads handles DELETE /api/upload/:category
func (h *Handlers) ClearUploads(c *gin.Context) {
	category, err := entity.ParseFileCategory(c.Param("category"))
	if err != nil {
		h.respondError(c, http.StatusNotFound, err.Error())
		return
	}

	if err := h.uploads.Clear(c.Request.Context(), category); err != nil {
		h.logger.Error("Failed to clear uploads", "category", category, "error", err)
		h.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// Validate handles POST /api/validate
func (h *Handlers) Validate(c *gin.Context) {
	result, ok := h.runPipeline(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// ValidateReport handles POST /api/validate/report
func (h *Handlers) ValidateReport(c *gin.Context) {
	result, ok := h.runPipeline(c)
	if !ok {
		return
	}

	report, err := h.renderer.Render(result)
	if err != nil {
		h.logger.Error("Failed to render report", "error", err)
		h.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("expense-validation-%s%s", h.now().UTC().Format("20060102-150405"), h.renderer.FileExtension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, h.renderer.ContentType(), report)
}

// runPipeline loads both uploads and runs a validation. It writes the error
// response itself and reports false on failure.
func (h *Handlers) runPipeline(c *gin.Context) (*entity.PipelineResult, bool) {
	ctx := c.Request.Context()

	policyText, ok := h.loadText(c, entity.CategoryPolicy, "No policy file uploaded")
	if !ok {
		return nil, false
	}
	expenseText, ok := h.loadText(c, entity.CategoryExpense, "No expense file uploaded")
	if !ok {
		return nil, false
	}

	result, err := h.pipeline.Run(ctx, policyText, expenseText)
	if err != nil {
		h.respondPipelineError(c, err)
		return nil, false
	}
	return result, true
}

func (h *Handlers) loadText(c *gin.Context, category entity.FileCategory, missingMsg string) (string, bool) {
	text, err := h.uploads.LoadText(c.Request.Context(), category)
	if err == nil {
		return text, true
	}
	if errors.Is(err, entity.ErrNoFileUploaded) {
		h.respondError(c, http.StatusBadRequest, missingMsg)
		return "", false
	}
	h.logger.Error("Failed to load uploaded file", "category", category, "error", err)
	h.respondError(c, http.StatusInternalServerError, err.Error())
	return "", false
}

func (h *Handlers) respondUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrUnsupportedFileType),
		errors.Is(err, entity.ErrFileTooLarge),
		errors.Is(err, entity.ErrEmptyFile),
		errors.Is(err, entity.ErrInvalidCategory):
		h.respondError(c, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Failed to save upload", "error", err)
		h.respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) respondPipelineError(c *gin.Context, err error) {
	switch {
	case entity.IsParseError(err):
		h.respondError(c, http.StatusBadRequest, err.Error())
	case entity.IsLLMError(err):
		h.logger.Error("LLM returned an unusable response", "error", err)
		h.respondError(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("Validation timed out", "error", err)
		h.respondError(c, http.StatusGatewayTimeout, err.Error())
	default:
		h.logger.Error("Validation failed", "error", err)
		h.respondError(c, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{Error: msg})
}
