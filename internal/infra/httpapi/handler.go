// Package httpapi exposes the analyzer over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/entity"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/domain/port"
	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const uploadField = "video"

type Config struct {
	TempDir        string
	MaxUploadBytes int64
}

type Handler struct {
	analyzer port.VideoAnalyzer
	cfg      Config
	logger   *zap.Logger
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRouter builds the HTTP routes around analyzer.
func NewRouter(analyzer port.VideoAnalyzer, cfg Config, logger *zap.Logger) *mux.Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 200 << 20
	}
	h := &Handler{analyzer: analyzer, cfg: cfg, logger: logger}

	r := mux.NewRouter()
	r.Use(countRequests)
	r.HandleFunc("/analyze", h.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleAnalyze accepts a video as multipart field "video" or as the raw body
// and answers with the annotated MP4. Clients sending Accept: application/json
// get the summary only.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	inputPath, err := h.saveUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendErrorResponse(w, "too_large", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(inputPath)

	summary, err := h.analyzer.Analyze(r.Context(), port.AnalyzeInput{InputPath: inputPath})
	if err != nil {
		h.sendAnalysisError(r.Context(), w, err)
		return
	}
	defer os.Remove(summary.OutputPath)

	h.logger.Info("analysis served",
		zap.Int("frames", summary.FrameCount),
		zap.Int("detected_frames", summary.DetectedFrames),
		zap.Duration("elapsed", time.Since(start)),
	)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
		return
	}

	f, err := os.Open(summary.OutputPath)
	if err != nil {
		sendErrorResponse(w, "output_error", err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		sendErrorResponse(w, "output_error", err.Error(), http.StatusInternalServerError)
		return
	}

	setSummaryHeaders(w.Header(), summary)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.Header().Set("Content-Disposition", `attachment; filename="squat_analysis.mp4"`)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to stream annotated video", zap.Error(err))
	}
}

func (h *Handler) saveUpload(r *http.Request) (string, error) {
	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return "", err
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", fmt.Errorf("missing form field %q", uploadField)
			}
			if err != nil {
				return "", err
			}
			if part.FormName() == uploadField {
				src = part
				break
			}
		}
	}

	f, err := os.CreateTemp(h.cfg.TempDir, "upload-*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.New("empty upload")
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (h *Handler) sendAnalysisError(ctx context.Context, w http.ResponseWriter, err error) {
	if ctx.Err() != nil {
		// The client went away; nobody is listening.
		return
	}
	if entity.IsInputError(err) {
		sendErrorResponse(w, "invalid_video", err.Error(), http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("analysis failed", zap.Error(err))
	sendErrorResponse(w, "analysis_error", err.Error(), http.StatusInternalServerError)
}

func setSummaryHeaders(hdr http.Header, s *entity.AnalysisSummary) {
	hdr.Set("X-Squat-Frames", strconv.Itoa(s.FrameCount))
	hdr.Set("X-Squat-Detected-Frames", strconv.Itoa(s.DetectedFrames))
	hdr.Set("X-Squat-Mean-Accuracy", strconv.FormatFloat(s.MeanAccuracy, 'f', 1, 64))
	if len(s.Categories) > 0 {
		data, _ := json.Marshal(s.Categories)
		hdr.Set("X-Squat-Categories", string(data))
	}
}

func wantsJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Accept"))
	return mediaType == "application/json"
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
