package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-validator/internal/domain/entity"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type stubUploads struct {
	texts   map[entity.FileCategory]string
	saveErr error
	loadErr error
	saved   []string
	cleared []entity.FileCategory
}

func newStubUploads() *stubUploads {
	return &stubUploads{texts: map[entity.FileCategory]string{}}
}

func (s *stubUploads) Save(ctx context.Context, category entity.FileCategory, originalName string, content []byte) (*entity.StoredFile, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saved = append(s.saved, originalName)
	s.texts[category] = string(content)
	return &entity.StoredFile{
		ID:           "file-1",
		Category:     category,
		OriginalName: originalName,
		StoredName:   "file-1.md",
		Path:         string(category) + "/file-1.md",
		Size:         int64(len(content)),
		UploadedAt:   time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubUploads) List(ctx context.Context, category entity.FileCategory) ([]*entity.StoredFile, error) {
	if _, ok := s.texts[category]; !ok {
		return nil, nil
	}
	return []*entity.StoredFile{{ID: "file-1", Category: category}}, nil
}

func (s *stubUploads) Clear(ctx context.Context, category entity.FileCategory) error {
	s.cleared = append(s.cleared, category)
	delete(s.texts, category)
	return nil
}

func (s *stubUploads) LoadText(ctx context.Context, category entity.FileCategory) (string, error) {
	if s.loadErr != nil {
		return "", s.loadErr
	}
	text, ok := s.texts[category]
	if !ok {
		return "", fmt.Errorf("%w: %s", entity.ErrNoFileUploaded, category)
	}
	return text, nil
}

type stubPipeline struct {
	result *entity.PipelineResult
	err    error
	calls  int
	policy string
}

func (s *stubPipeline) Run(ctx context.Context, policyText, expenseText string) (*entity.PipelineResult, error) {
	s.calls++
	s.policy = policyText
	return s.result, s.err
}

type stubRenderer struct{}

func (stubRenderer) Render(result *entity.PipelineResult) ([]byte, error) {
	return []byte(fmt.Sprintf("report with %d results", len(result.Results))), nil
}

func (stubRenderer) ContentType() string   { return "application/test-report" }
func (stubRenderer) FileExtension() string { return ".xlsx" }

func sampleResult() *entity.PipelineResult {
	limit := 500.0
	return &entity.PipelineResult{
		Expenses: []entity.Expense{{Employee: "Jane", Amount: 600, Category: "Hotel", Description: "Hilton"}},
		ExtractedPolicy: &entity.ExtractedPolicy{
			Rules: []entity.PolicyRule{{Category: "Hotel", MaxAmount: &limit, PlainEnglish: "Hotels up to $500 per night"}},
		},
		Results: []entity.ValidationResult{{Status: entity.StatusNeedsReview, Reason: "over limit"}},
	}
}

func newTestServer(t *testing.T, uploads *stubUploads, pipeline *stubPipeline, cfg ServerConfig) (*Server, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	return NewServer(cfg, uploads, pipeline, stubRenderer{}, logger), logger
}

func testConfig() ServerConfig {
	cfg := DefaultServerConfig()
	cfg.RateLimit.Enabled = false
	return cfg
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, newStubUploads(), &stubPipeline{}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, newStubUploads(), &stubPipeline{}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUploadFile_Success(t *testing.T) {
	uploads := newStubUploads()
	s, _ := newTestServer(t, uploads, &stubPipeline{}, testConfig())

	body, contentType := multipartBody(t, "file", "travel policy.md", []byte("# Policy"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/policy", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var stored entity.StoredFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, entity.CategoryPolicy, stored.Category)
	assert.Equal(t, int64(8), stored.Size)
	assert.Equal(t, "# Policy", uploads.texts[entity.CategoryPolicy])
	require.Len(t, uploads.saved, 1)
}

func TestUploadFile_SanitizesName(t *testing.T) {
	uploads := newStubUploads()
	s, _ := newTestServer(t, uploads, &stubPipeline{}, testConfig())

	body, contentType := multipartBody(t, "file", "../../etc/expenses.csv", []byte("a,b"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/expense", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, uploads.saved, 1)
	assert.NotContains(t, uploads.saved[0], "/")
	assert.True(t, strings.HasSuffix(uploads.saved[0], ".csv"))
}

func TestUploadFile_NoFile(t *testing.T) {
	s, _ := newTestServer(t, newStubUploads(), &stubPipeline{}, testConfig())

	body, contentType := multipartBody(t, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/policy", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decodeError(t, rec))
}

func TestUploadFile_RejectedByService(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unsupported type", fmt.Errorf("%w: only .csv files are allowed", entity.ErrUnsupportedFileType), http.StatusBadRequest},
		{"too large", fmt.Errorf("%w: maximum size is 5MB", entity.ErrFileTooLarge), http.StatusBadRequest},
		{"empty", entity.ErrEmptyFile, http.StatusBadRequest},
		{"storage failure", errors.New("save expense file: disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := newStubUploads()
			uploads.saveErr = tt.err
			s, _ := newTestServer(t, uploads, &stubPipeline{}, testConfig())

			body, contentType := multipartBody(t, "file", "expenses.csv", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload/expense", body)
			req.Header.Set("Content-Type", contentType)

			rec := do(s, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeError(t, rec))
		})
	}
}

func TestUploadFile_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 1024
	s, _ := newTestServer(t, newStubUploads(), &stubPipeline{}, cfg)

	body, contentType := multipartBody(t, "file", "policy.txt", bytes.Repeat([]byte("a"), multipartOverhead+4096))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/policy", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "File too large")
}

func TestUploadFile_UnknownCategory(t *testing.T) {
	s, _ := newTestServer(t, newStubUploads(), &stubPipeline{}, testConfig())

	body, contentType := multipartBody(t, "file", "x.md", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/receipts", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndClearUploads(t *testing.T) {
	uploads := newStubUploads()
	uploads.texts[entity.CategoryExpense] = "csv"
	s, _ := newTestServer(t, uploads, &stubPipeline{}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/upload/expense", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var files []entity.StoredFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 1)

	rec = do(s, httptest.NewRequest(http.MethodDelete, "/api/upload/expense", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []entity.FileCategory{entity.CategoryExpense}, uploads.cleared)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/upload/expense", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestValidate_MissingUploads(t *testing.T) {
	tests := []struct {
		name    string
		texts   map[entity.FileCategory]string
		wantMsg string
	}{
		{"nothing uploaded", map[entity.FileCategory]string{}, "No policy file uploaded"},
		{"policy only", map[entity.FileCategory]string{entity.CategoryPolicy: "policy"}, "No expense file uploaded"},
		{"expense only", map[entity.FileCategory]string{entity.CategoryExpense: "csv"}, "No policy file uploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := newStubUploads()
			uploads.texts = tt.texts
			pipeline := &stubPipeline{result: sampleResult()}
			s, _ := newTestServer(t, uploads, pipeline, testConfig())

			rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate", nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, rec))
			assert.Equal(t, 0, pipeline.calls)
		})
	}
}

func TestValidate_Success(t *testing.T) {
	uploads := newStubUploads()
	uploads.texts[entity.CategoryPolicy] = "Hotels max $500"
	uploads.texts[entity.CategoryExpense] = "employee,amount,category,description"
	pipeline := &stubPipeline{result: sampleResult()}
	s, _ := newTestServer(t, uploads, pipeline, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result entity.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, entity.StatusNeedsReview, result.Results[0].Status)
	assert.Equal(t, "Jane", result.Expenses[0].Employee)
	assert.Equal(t, "Hotels max $500", pipeline.policy)
}

func TestValidate_PipelineErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"parse error", &entity.ParseError{Msg: "Missing required columns: description"}, http.StatusBadRequest},
		{"contract error", &entity.LLMContractError{Stage: "policy extraction", Msg: "rules must be an array"}, http.StatusBadGateway},
		{"empty response", fmt.Errorf("batch 1: %w", entity.ErrLLMEmptyResponse), http.StatusBadGateway},
		{"deadline", fmt.Errorf("OpenAI API call failed: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"transport", errors.New("OpenAI API call failed: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := newStubUploads()
			uploads.texts[entity.CategoryPolicy] = "policy"
			uploads.texts[entity.CategoryExpense] = "csv"
			s, _ := newTestServer(t, uploads, &stubPipeline{err: tt.err}, testConfig())

			rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeError(t, rec))
		})
	}
}

func TestValidate_LoadFailure(t *testing.T) {
	uploads := newStubUploads()
	uploads.loadErr = errors.New("extract text from policy.pdf: no text found")
	s, logger := newTestServer(t, uploads, &stubPipeline{}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no text found")
	assert.Contains(t, logger.errors, "Failed to load uploaded file")
}

func TestValidateReport(t *testing.T) {
	uploads := newStubUploads()
	uploads.texts[entity.CategoryPolicy] = "policy"
	uploads.texts[entity.CategoryExpense] = "csv"
	s, _ := newTestServer(t, uploads, &stubPipeline{result: sampleResult()}, testConfig())
	s.handlers.now = func() time.Time { return time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC) }

	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate/report", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/test-report", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="expense-validation-20261019-143005.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "report with 1 results", rec.Body.String())
}

func TestValidateReport_PipelineError(t *testing.T) {
	uploads := newStubUploads()
	uploads.texts[entity.CategoryPolicy] = "policy"
	uploads.texts[entity.CategoryExpense] = "csv"
	s, _ := newTestServer(t, uploads, &stubPipeline{err: &entity.ParseError{Row: 3, Msg: "invalid amount"}}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate/report", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Row 3: invalid amount", decodeError(t, rec))
}

func TestRecoveryOnPanic(t *testing.T) {
	uploads := newStubUploads()
	uploads.texts[entity.CategoryPolicy] = "policy"
	uploads.texts[entity.CategoryExpense] = "csv"
	// nil result without an error
	s, _ := newTestServer(t, uploads, &stubPipeline{}, testConfig())

	rec := do(s, httptest.NewRequest(http.MethodPost, "/api/validate/report", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
