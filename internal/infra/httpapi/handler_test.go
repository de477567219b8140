package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoAnalyzer "annotates" by copying the input behind a fixed prefix.
type echoAnalyzer struct {
	dir      string
	err      error
	received []byte
}

func (a *echoAnalyzer) Analyze(_ context.Context, in port.AnalyzeInput) (*entity.AnalysisSummary, error) {
	data, err := os.ReadFile(in.InputPath)
	if err != nil {
		return nil, err
	}
	a.received = data
	if a.err != nil {
		return nil, a.err
	}
	out := filepath.Join(a.dir, "out.mp4")
	if err := os.WriteFile(out, append([]byte("annotated:"), data...), 0o644); err != nil {
		return nil, err
	}
	return &entity.AnalysisSummary{
		OutputPath:     out,
		FrameCount:     10,
		DetectedFrames: 8,
		Categories:     map[entity.Category]int{entity.CategoryPerfect: 8},
		MeanAccuracy:   97.5,
	}, nil
}

func newTestRouter(t *testing.T, a *echoAnalyzer, maxUpload int64) http.Handler {
	t.Helper()
	a.dir = t.TempDir()
	return NewRouter(a, Config{TempDir: t.TempDir(), MaxUploadBytes: maxUpload}, zap.NewNop())
}

func TestAnalyzeRawBody(t *testing.T) {
	a := &echoAnalyzer{}
	router := newTestRouter(t, a, 0)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("raw-video")))
	req.Header.Set("Content-Type", "video/mp4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "annotated:raw-video", rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("X-Squat-Frames"))
	assert.Equal(t, "8", rec.Header().Get("X-Squat-Detected-Frames"))
	assert.Equal(t, "97.5", rec.Header().Get("X-Squat-Mean-Accuracy"))
	assert.JSONEq(t, `{"PERFECT":8}`, rec.Header().Get("X-Squat-Categories"))
	assert.NoFileExists(t, filepath.Join(a.dir, "out.mp4"))
}

func TestAnalyzeMultipart(t *testing.T) {
	a := &echoAnalyzer{}
	router := newTestRouter(t, a, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "first set"))
	fw, err := mw.CreateFormFile("video", "squat.mov")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("form-video"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("form-video"), a.received)
}

func TestAnalyzeMultipartMissingField(t *testing.T) {
	router := newTestRouter(t, &echoAnalyzer{}, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "no video"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeSummaryAsJSON(t *testing.T) {
	router := newTestRouter(t, &echoAnalyzer{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("v")))
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary entity.AnalysisSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 10, summary.FrameCount)
	assert.Equal(t, 8, summary.Categories[entity.CategoryPerfect])
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unreadable video", &entity.IOError{Stage: entity.StageOpen, Path: "in", Frame: -1, Err: errors.New("moov atom not found")}, http.StatusUnprocessableEntity, "invalid_video"},
		{"provider fault", &entity.IOError{Stage: entity.StageDetect, Path: "in", Frame: 4, Err: errors.New("sidecar died")}, http.StatusInternalServerError, "analysis_error"},
		{"encoder missing", &entity.IOError{Stage: entity.StageWrite, Path: "out.mp4", Frame: -1, Err: errors.New(`exec: "ffmpeg": executable file not found in $PATH`)}, http.StatusInternalServerError, "analysis_error"},
		{"truncated stream", &entity.IOError{Stage: entity.StageRead, Path: "in", Frame: 7, Err: errors.New("unexpected EOF")}, http.StatusUnprocessableEntity, "invalid_video"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &echoAnalyzer{err: tt.err}, 0)

			req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("v")))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAnalyzeRejectsEmptyAndOversizedUploads(t *testing.T) {
	router := newTestRouter(t, &echoAnalyzer{}, 4)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte("too large"))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, &echoAnalyzer{}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "squat_http_requests_total")
}

func TestAnalyzeRequiresPost(t *testing.T) {
	router := newTestRouter(t, &echoAnalyzer{}, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
